// Package session owns the authenticated platform session: the login
// challenge sequence, cookie capture and restore, and invalidation. One
// manager owns one transport; no concurrent use of the session is
// supported because the underlying surface is stateful.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
)

// State is the session lifecycle position.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	// StateAwaitingChallenge means the platform interposed a secondary
	// verification prompt; the caller must supply the value via
	// SubmitChallenge before the sequence can finish.
	StateAwaitingChallenge
	StateAuthenticated
	StateExpired
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unauthenticated"
	}
}

// ChallengeKindContact is the email/phone confirmation prompt the platform
// interposes for logins from unfamiliar environments.
const ChallengeKindContact = "email_or_phone"

// ErrNotAuthenticated is returned when an operation needs a live session.
var ErrNotAuthenticated = errors.New("session not authenticated")

// Manager drives the login state machine over one transport.
type Manager struct {
	transport browser.Transport
	gov       *governor.Governor
	cfg       config.PlatformConfig

	mu            sync.Mutex
	state         State
	challengeKind string
	pendingSecret string
	createdAt     time.Time
}

// NewManager creates a session manager over an initialized transport.
func NewManager(transport browser.Transport, gov *governor.Governor, cfg config.PlatformConfig) *Manager {
	return &Manager{
		transport: transport,
		gov:       gov,
		cfg:       cfg,
		state:     StateUnauthenticated,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ChallengeKind reports which secondary prompt is pending, empty when none.
func (m *Manager) ChallengeKind() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challengeKind
}

// CreatedAt reports when the current authenticated session was established.
func (m *Manager) CreatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createdAt
}

// Transport hands out the authenticated transport for discovery and
// posting. Fails when the session is not live.
func (m *Manager) Transport() (browser.Transport, error) {
	if m.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return m.transport, nil
}

// Login drives the multi-step challenge sequence: identifier, optional
// secondary verification, password, landing-indicator poll. When the
// platform interposes a challenge the manager parks in AwaitingChallenge
// and returns *LoginError{challenge_required}; the caller resumes with
// SubmitChallenge.
func (m *Manager) Login(ctx context.Context, creds config.Credentials) error {
	m.setState(StateAuthenticating)

	err := m.gov.Execute(ctx, "login", func(ctx context.Context) error {
		return m.loginSequence(ctx, creds)
	})
	if err == nil {
		return nil
	}

	var le *LoginError
	if errors.As(err, &le) {
		if le.Reason != ReasonChallengeRequired {
			m.setState(StateUnauthenticated)
		}
		return le
	}
	m.setState(StateUnauthenticated)
	return err
}

// SubmitChallenge supplies the secondary verification value and resumes
// the suspended login sequence.
func (m *Manager) SubmitChallenge(ctx context.Context, value string) error {
	m.mu.Lock()
	if m.state != StateAwaitingChallenge {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("no challenge pending (state=%s)", state)
	}
	secret := m.pendingSecret
	m.mu.Unlock()

	err := m.gov.Execute(ctx, "login_challenge", func(ctx context.Context) error {
		sel := m.cfg.Selectors
		ch, err := m.transport.WaitVisible(ctx, sel.ChallengeInput, m.cfg.StepTimeout())
		if err != nil {
			return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
		}
		if err := ch.Input(ctx, value); err != nil {
			return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
		}
		if err := ch.PressEnter(ctx); err != nil {
			return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
		}
		return m.completeLogin(ctx, secret)
	})
	if err == nil {
		return nil
	}

	m.setState(StateUnauthenticated)
	var le *LoginError
	if errors.As(err, &le) {
		return le
	}
	return err
}

func (m *Manager) loginSequence(ctx context.Context, creds config.Credentials) error {
	sel := m.cfg.Selectors

	if err := m.transport.Navigate(ctx, m.cfg.LoginURL()); err != nil {
		return governor.Transient(err)
	}

	user, err := m.transport.WaitVisible(ctx, sel.UsernameInput, m.cfg.StepTimeout())
	if err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}
	if err := user.Input(ctx, creds.Identifier); err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}
	if err := user.PressEnter(ctx); err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}

	// Short probe: did the platform interpose a secondary verification
	// prompt instead of the password field?
	if _, err := m.transport.WaitVisible(ctx, sel.ChallengeInput, m.cfg.ChallengeProbe()); err == nil {
		m.mu.Lock()
		m.state = StateAwaitingChallenge
		m.challengeKind = ChallengeKindContact
		m.pendingSecret = creds.Secret
		m.mu.Unlock()
		logging.Session("login suspended: secondary verification required")
		return governor.AuthFailure(&LoginError{Reason: ReasonChallengeRequired})
	}

	return m.completeLogin(ctx, creds.Secret)
}

func (m *Manager) completeLogin(ctx context.Context, secret string) error {
	sel := m.cfg.Selectors

	pw, err := m.transport.WaitVisible(ctx, sel.PasswordInput, m.cfg.StepTimeout())
	if err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}
	if err := pw.Input(ctx, secret); err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}
	if err := pw.PressEnter(ctx); err != nil {
		return governor.Permanent(&LoginError{Reason: ReasonUnexpectedLayout, Err: err})
	}

	if _, err := m.transport.WaitVisible(ctx, sel.LandingIndicator, m.cfg.LoginTimeout()); err != nil {
		return governor.AuthFailure(&LoginError{Reason: ReasonCredentialsRejected, Err: err})
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.challengeKind = ""
	m.pendingSecret = ""
	m.createdAt = time.Now()
	m.mu.Unlock()

	logging.Session("login complete")
	return nil
}

// Restore re-applies a previously captured cookie set without re-running
// the challenge sequence. Individual cookie failures are logged and
// skipped; final validity is decided by an authenticated probe.
func (m *Manager) Restore(ctx context.Context, cookies []browser.Cookie) error {
	if len(cookies) == 0 {
		return &RestoreError{Err: errors.New("empty cookie set")}
	}
	m.setState(StateAuthenticating)

	applied := 0
	for _, c := range cookies {
		if err := m.transport.SetCookie(ctx, c); err != nil {
			logging.Session("restore: skipping cookie %s: %v", c.Name, err)
			continue
		}
		applied++
	}
	if applied == 0 {
		m.setState(StateUnauthenticated)
		return &RestoreError{Err: errors.New("no cookies could be applied")}
	}
	logging.SessionDebug("restore: applied %d/%d cookies", applied, len(cookies))

	err := m.gov.Execute(ctx, "restore_probe", func(ctx context.Context) error {
		if err := m.transport.Navigate(ctx, m.cfg.HomeURL()); err != nil {
			return governor.Transient(err)
		}
		if _, err := m.transport.WaitVisible(ctx, m.cfg.Selectors.LandingIndicator, m.cfg.LoginTimeout()); err != nil {
			return governor.AuthFailure(err)
		}
		return nil
	})
	if err != nil {
		m.setState(StateUnauthenticated)
		return &RestoreError{Err: err}
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.createdAt = time.Now()
	m.mu.Unlock()

	logging.Session("session restored from %d cookies", applied)
	return nil
}

// Serialize snapshots the current cookie set for caller-side persistence.
func (m *Manager) Serialize(ctx context.Context) ([]browser.Cookie, error) {
	if m.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return m.transport.Cookies(ctx)
}

// Logout invalidates all cookies and ends the session. Irreversible: a
// fresh Login is required afterward.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.transport.ClearCookies(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = StateLoggedOut
	m.challengeKind = ""
	m.pendingSecret = ""
	m.mu.Unlock()
	logging.Session("logged out")
	return nil
}

// Invalidate marks the session expired after an unrecoverable auth
// failure observed downstream.
func (m *Manager) Invalidate() {
	m.setState(StateExpired)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
