package otpx

import "crypto/sha1"

// hmacBlockSize is the SHA-1 block size mandated by RFC 2104.
const hmacBlockSize = 64

// HMACSHA1 computes RFC 2104 HMAC-SHA1 over message with the given key.
// Keys longer than the 64-byte block are first shortened by hashing them,
// per the RFC's key-shortening rule.
func HMACSHA1(key, message []byte) [sha1.Size]byte {
	if len(key) > hmacBlockSize {
		sum := sha1.Sum(key)
		key = sum[:]
	}

	var ipad, opad [hmacBlockSize]byte
	copy(ipad[:], key)
	copy(opad[:], key)
	for i := range hmacBlockSize {
		ipad[i] ^= 0x36
		opad[i] ^= 0x5c
	}

	inner := sha1.New()
	inner.Write(ipad[:])
	inner.Write(message)

	outer := sha1.New()
	outer.Write(opad[:])
	outer.Write(inner.Sum(nil))

	var mac [sha1.Size]byte
	copy(mac[:], outer.Sum(nil))
	return mac
}
