package domain

// AlgorithmPQSigV1 tags the current device signing scheme (ML-DSA-44, the
// standardised Dilithium2 parameter set).
const AlgorithmPQSigV1 = "PQ-SIG-V1"

// placeholderAlgorithms are tags written by early builds before a real
// post-quantum scheme shipped. A persisted identity carrying one is
// discarded and regenerated exactly once.
var placeholderAlgorithms = map[string]struct{}{
	"":             {},
	"NONE":         {},
	"STUB-ED25519": {},
	"PQ-SIG-V0":    {},
}

// DeviceIdentity is the device's long-term cryptographic identity. Exactly
// one exists per installation; the private key never leaves the device.
type DeviceIdentity struct {
	DeviceID     string
	Algorithm    string
	PublicKey    string // hex
	PrivateKey   string // hex
	KEMPublicKey string // hex, registered with the backend for future key encapsulation
}

// NeedsMigration reports whether the persisted algorithm tag is a known
// insecure placeholder.
func (d DeviceIdentity) NeedsMigration() bool {
	_, placeholder := placeholderAlgorithms[d.Algorithm]
	return placeholder
}

// Usable reports whether the identity can sign.
func (d DeviceIdentity) Usable() bool {
	return d.PrivateKey != "" && !d.NeedsMigration()
}

// Signature is the outcome of a signing request: either Signed with the
// hex-encoded signature, or Unsigned when no usable key material exists.
// Callers must treat Unsigned as "cannot approve", never as an approval
// without proof.
type Signature struct {
	hex    string
	signed bool
}

// Signed wraps a hex-encoded signature.
func Signed(hex string) Signature { return Signature{hex: hex, signed: true} }

// Unsigned is the absent signature.
var Unsigned = Signature{}

// Hex returns the signature hex and whether one exists.
func (s Signature) Hex() (string, bool) { return s.hex, s.signed }
