package session

import "fmt"

// Login failure reasons. Distinguished so the caller can decide whether to
// prompt for new credentials, supply a challenge value, or report a
// platform-compatibility problem.
const (
	ReasonCredentialsRejected = "credentials_rejected"
	ReasonUnexpectedLayout    = "unexpected_layout"
	ReasonChallengeRequired   = "challenge_required"
)

// LoginError reports a failed or suspended login sequence.
type LoginError struct {
	Reason string
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("login failed (%s)", e.Reason)
}

func (e *LoginError) Unwrap() error { return e.Err }

// RestoreError reports that a cookie-based session restore did not produce
// a valid session.
type RestoreError struct {
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("session restore failed: %v", e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
