// Package otpx implements the one-time-password primitives used by the
// authenticator: RFC 4648 base32 decoding, RFC 2104 HMAC-SHA1, RFC 4226
// HOTP and the RFC 6238 time-based engine built on top of them.
//
// The package is deliberately dependency-free. Code generation is the one
// place where a silent behavioural drift in a third-party library would be
// invisible until a user is locked out, so the primitives are implemented
// against the RFCs directly and validated by a startup self-test.
package otpx

// DecodeError reports a character outside the RFC 4648 base32 alphabet.
type DecodeError struct {
	Char byte
	Pos  int
}

func (e *DecodeError) Error() string {
	return "otpx: invalid base32 character '" + string(e.Char) + "'"
}

// Base32Decode decodes an RFC 4648 base32 string. It is case-insensitive,
// skips interior ASCII whitespace and ignores trailing '=' padding. Any
// other character outside the alphabet yields a *DecodeError.
func Base32Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8)

	var buf uint16
	var bits uint
	padded := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		if c == '=' {
			padded = true
			continue
		}
		if padded {
			// Data after padding is malformed.
			return nil, &DecodeError{Char: c, Pos: i}
		}

		var v uint16
		switch {
		case c >= 'A' && c <= 'Z':
			v = uint16(c - 'A')
		case c >= 'a' && c <= 'z':
			v = uint16(c - 'a')
		case c >= '2' && c <= '7':
			v = uint16(c-'2') + 26
		default:
			return nil, &DecodeError{Char: c, Pos: i}
		}

		buf = buf<<5 | v
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}

	// Leftover bits are the tail of an incomplete quantum and are dropped,
	// matching the behaviour of decoders that tolerate missing padding.
	return out, nil
}
