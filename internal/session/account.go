package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// Decoding errors are deliberately split: callers must be able to tell "this
// address does not hold a session" from "this session record is corrupt".
var (
	ErrNotSessionAccount       = errors.New("not a session account")
	ErrMalformedSessionAccount = errors.New("malformed session account")
)

// sessionAccountDiscriminator tags on-chain session records.
var sessionAccountDiscriminator = [8]byte{0xd2, 0x17, 0x46, 0xea, 0x3c, 0x88, 0x0f, 0x5b}

// DeriveSessionAddress returns the session record address for a session
// public key under managerProgram.
func DeriveSessionAddress(sessionKey, managerProgram chain.PublicKey) (chain.PublicKey, error) {
	address, _, err := chain.FindProgramAddress(
		[][]byte{[]byte("session"), sessionKey[:]},
		managerProgram,
	)
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("failed to derive session address: %w", err)
	}
	return address, nil
}

type accountReader struct {
	data []byte
	pos  int
}

func (r *accountReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedSessionAccount, n, r.pos, len(r.data)-r.pos)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *accountReader) pubkey() (chain.PublicKey, error) {
	b, err := r.take(chain.PublicKeyLength)
	if err != nil {
		return chain.PublicKey{}, err
	}
	var pk chain.PublicKey
	copy(pk[:], b)
	return pk, nil
}

func (r *accountReader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *accountReader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *accountReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *accountReader) i64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// DecodeSessionAccount decodes an on-chain session record. The discriminator
// is validated before any field is interpreted; a wrong discriminator yields
// ErrNotSessionAccount, any later layout violation yields
// ErrMalformedSessionAccount.
func DecodeSessionAccount(data []byte) (*SessionInfo, error) {
	if len(data) < len(sessionAccountDiscriminator) {
		return nil, fmt.Errorf("%w: %d bytes is too short for a discriminator", ErrNotSessionAccount, len(data))
	}
	if [8]byte(data[:8]) != sessionAccountDiscriminator {
		return nil, ErrNotSessionAccount
	}

	r := &accountReader{data: data, pos: 8}
	info := &SessionInfo{}

	var err error
	if info.Wallet, err = r.pubkey(); err != nil {
		return nil, err
	}
	if info.Major, err = r.u16(); err != nil {
		return nil, err
	}
	if info.Minor, err = r.u16(); err != nil {
		return nil, err
	}
	expiration, err := r.i64()
	if err != nil {
		return nil, err
	}
	info.Expiration = time.Unix(expiration, 0).UTC()

	programsTag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch programsTag {
	case 0:
		info.AuthorizedPrograms.Kind = AuthorizedAll
	case 1:
		info.AuthorizedPrograms.Kind = AuthorizedSpecific
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		for n := uint32(0); n < count; n++ {
			var grant ProgramGrant
			if grant.ProgramID, err = r.pubkey(); err != nil {
				return nil, err
			}
			if grant.SignerPDA, err = r.pubkey(); err != nil {
				return nil, err
			}
			info.AuthorizedPrograms.Grants = append(info.AuthorizedPrograms.Grants, grant)
		}
	default:
		return nil, fmt.Errorf("%w: unknown authorized-programs tag %d", ErrMalformedSessionAccount, programsTag)
	}

	tokensTag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch tokensTag {
	case 0:
		info.AuthorizedTokens.Kind = AuthorizedAll
	case 1:
		info.AuthorizedTokens.Kind = AuthorizedSpecific
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		for n := uint32(0); n < count; n++ {
			mint, err := r.pubkey()
			if err != nil {
				return nil, err
			}
			info.AuthorizedTokens.Mints = append(info.AuthorizedTokens.Mints, mint)
		}
	default:
		return nil, fmt.Errorf("%w: unknown authorized-tokens tag %d", ErrMalformedSessionAccount, tokensTag)
	}

	extraLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	extra, err := r.take(int(extraLen))
	if err != nil {
		return nil, err
	}
	info.Extra = string(extra)

	if r.pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedSessionAccount, len(data)-r.pos)
	}
	return info, nil
}
