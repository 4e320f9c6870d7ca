package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const maxSeedLength = 32

var pdaMarker = []byte("ProgramDerivedAddress")

// ErrInvalidSeeds is returned when no off-curve address can be derived.
var ErrInvalidSeeds = errors.New("unable to find a viable program derived address")

// CreateProgramAddress derives the program address for the given seeds.
// Fails when the resulting point lies on the ed25519 curve, since a program
// address must not have a corresponding private key.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed exceeds max length of %d bytes", maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var pk PublicKey
	copy(pk[:], h.Sum(nil))

	if isOnCurve(pk) {
		return PublicKey{}, errors.New("derived address falls on the ed25519 curve")
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 downward for the first
// valid (off-curve) program derived address.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		address, err := CreateProgramAddress(append(seeds, []byte{byte(bump)}), programID)
		if err == nil {
			return address, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrInvalidSeeds
}

// DeriveAssociatedTokenAddress returns the canonical token account for the
// given owner and mint.
func DeriveAssociatedTokenAddress(owner, mint PublicKey) (PublicKey, error) {
	address, _, err := FindProgramAddress(
		[][]byte{owner[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return address, nil
}

func isOnCurve(pk PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}
