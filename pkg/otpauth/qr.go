package otpauth

import qrcode "github.com/skip2/go-qrcode"

// QRCode renders an account's enrollment URI as a PNG of the given pixel
// size, for scanning by another authenticator.
func QRCode(issuer, label, secret string, size int) ([]byte, error) {
	return qrcode.Encode(URI(issuer, label, secret), qrcode.Medium, size)
}
