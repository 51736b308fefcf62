package otpx

import (
	"encoding/binary"
	"fmt"
)

// Digits is the code length produced by this package.
const Digits = 6

// HOTP computes the RFC 4226 HMAC-based one-time password for a raw secret
// and counter: an 8-byte big-endian counter is HMAC'd with the secret, the
// digest is dynamically truncated (offset taken from the low nibble of the
// last byte, four bytes read at that offset masked to 31 bits) and reduced
// modulo 10^6. The result is zero-padded to exactly six digits.
func HOTP(secret []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := HMACSHA1(secret, msg[:])

	offset := mac[len(mac)-1] & 0x0f
	code := binary.BigEndian.Uint32(mac[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, code%1_000_000)
}
