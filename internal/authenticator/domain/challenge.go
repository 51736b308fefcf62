package domain

// ChallengeStatus is the backend-reported state of a login approval
// challenge.
type ChallengeStatus string

const (
	StatusPending  ChallengeStatus = "pending"
	StatusApproved ChallengeStatus = "approved"
	StatusDenied   ChallengeStatus = "denied"
	StatusExpired  ChallengeStatus = "expired"
)

// Terminal reports whether the status ends the challenge. Once a terminal
// status has been handled, later poll responses must be ignored.
func (s ChallengeStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// Decision is a human approve/deny choice on a responder device.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Challenge is the requester-side view of an outstanding login approval.
type Challenge struct {
	ID             string
	DeviceID       string
	RememberDevice bool
}

// PendingChallenge is the responder-side view of a challenge addressed to
// this device, with whatever context the backend forwards (requesting IP
// and the like) for display.
type PendingChallenge struct {
	ID      string
	Context map[string]string
}

// ApprovalMessage is the exact byte string a responder signs. Binding the
// challenge id and the decision into the signed message is what prevents a
// decision being replayed for a different challenge or flipped in transit.
func ApprovalMessage(challengeID string, decision Decision) string {
	return challengeID + ":" + string(decision)
}
