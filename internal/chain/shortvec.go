package chain

import "fmt"

// appendShortvecLen appends a compact-u16 length prefix to buf.
func appendShortvecLen(buf []byte, n int) []byte {
	rem := uint16(n)
	for {
		b := byte(rem & 0x7f)
		rem >>= 7
		if rem == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// decodeShortvecLen decodes a compact-u16 length prefix from data,
// returning the value and the number of bytes consumed.
func decodeShortvecLen(data []byte) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("short buffer decoding compact-u16")
		}
		b := data[i]
		value |= uint(b&0x7f) << shift
		if b&0x80 == 0 {
			if value > 0xffff {
				return 0, 0, fmt.Errorf("compact-u16 out of range: %d", value)
			}
			return int(value), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
