package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/governor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeElement struct {
	inputs []string
	enters int
	clicks int
}

func (e *fakeElement) Click(ctx context.Context) error { e.clicks++; return nil }
func (e *fakeElement) Input(ctx context.Context, text string) error {
	e.inputs = append(e.inputs, text)
	return nil
}
func (e *fakeElement) PressEnter(ctx context.Context) error { e.enters++; return nil }
func (e *fakeElement) Text(ctx context.Context) (string, error) {
	return "", nil
}
func (e *fakeElement) Attribute(ctx context.Context, name string) (string, error) {
	return "", nil
}

type fakeTransport struct {
	elements     map[string]*fakeElement
	navigations  []string
	cookies      []browser.Cookie
	setCookieErr map[string]error
	cleared      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{elements: map[string]*fakeElement{}}
}

func (t *fakeTransport) Navigate(ctx context.Context, url string) error {
	t.navigations = append(t.navigations, url)
	return nil
}

func (t *fakeTransport) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	if el, ok := t.elements[selector]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("element %q not found: timeout", selector)
}

func (t *fakeTransport) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func (t *fakeTransport) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return t.cookies, nil
}

func (t *fakeTransport) SetCookie(ctx context.Context, c browser.Cookie) error {
	if err, ok := t.setCookieErr[c.Name]; ok {
		return err
	}
	t.cookies = append(t.cookies, c)
	return nil
}

func (t *fakeTransport) ClearCookies(ctx context.Context) error {
	t.cleared = true
	t.cookies = nil
	return nil
}

func (t *fakeTransport) Close() error { return nil }

func testPlatform() config.PlatformConfig {
	cfg := config.DefaultConfig().Platform
	cfg.StepTimeoutMs = 50
	cfg.LoginTimeoutMs = 50
	cfg.ChallengeProbeMs = 20
	return cfg
}

func testGovernor() *governor.Governor {
	return governor.New(governor.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		WindowLimit: 100,
		WindowSize:  time.Minute,
	})
}

func creds() config.Credentials {
	return config.Credentials{Identifier: "someone", Secret: "hunter2"}
}

func TestLogin_HappyPath(t *testing.T) {
	cfg := testPlatform()
	sel := cfg.Selectors
	transport := newFakeTransport()
	user := &fakeElement{}
	pw := &fakeElement{}
	transport.elements[sel.UsernameInput] = user
	transport.elements[sel.PasswordInput] = pw
	transport.elements[sel.LandingIndicator] = &fakeElement{}
	transport.cookies = []browser.Cookie{{Name: "auth_token", Value: "tok", Domain: ".twitter.com"}}

	m := NewManager(transport, testGovernor(), cfg)
	require.NoError(t, m.Login(context.Background(), creds()))

	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, []string{"someone"}, user.inputs)
	assert.Equal(t, []string{"hunter2"}, pw.inputs)
	assert.Equal(t, 1, user.enters)
	assert.Equal(t, 1, pw.enters)
	assert.False(t, m.CreatedAt().IsZero())

	// Authenticated implies a non-empty serializable cookie jar.
	cookies, err := m.Serialize(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cookies)
}

func TestLogin_ChallengeSuspendsThenCompletes(t *testing.T) {
	cfg := testPlatform()
	sel := cfg.Selectors
	transport := newFakeTransport()
	challenge := &fakeElement{}
	transport.elements[sel.UsernameInput] = &fakeElement{}
	transport.elements[sel.ChallengeInput] = challenge
	transport.elements[sel.PasswordInput] = &fakeElement{}
	transport.elements[sel.LandingIndicator] = &fakeElement{}

	m := NewManager(transport, testGovernor(), cfg)

	err := m.Login(context.Background(), creds())
	var le *LoginError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ReasonChallengeRequired, le.Reason)
	assert.Equal(t, StateAwaitingChallenge, m.State())
	assert.Equal(t, ChallengeKindContact, m.ChallengeKind())

	// Transport stays gated while suspended.
	_, err = m.Transport()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, m.SubmitChallenge(context.Background(), "someone@example.com"))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, []string{"someone@example.com"}, challenge.inputs)
}

func TestSubmitChallenge_WithoutPendingChallenge(t *testing.T) {
	m := NewManager(newFakeTransport(), testGovernor(), testPlatform())
	err := m.SubmitChallenge(context.Background(), "value")
	require.Error(t, err)
}

func TestLogin_CredentialsRejected(t *testing.T) {
	cfg := testPlatform()
	sel := cfg.Selectors
	transport := newFakeTransport()
	transport.elements[sel.UsernameInput] = &fakeElement{}
	transport.elements[sel.PasswordInput] = &fakeElement{}
	// No landing indicator: the post-login poll times out.

	m := NewManager(transport, testGovernor(), cfg)
	err := m.Login(context.Background(), creds())

	var le *LoginError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ReasonCredentialsRejected, le.Reason)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestLogin_UnexpectedLayout(t *testing.T) {
	cfg := testPlatform()
	transport := newFakeTransport() // no username input at all

	m := NewManager(transport, testGovernor(), cfg)
	err := m.Login(context.Background(), creds())

	var le *LoginError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ReasonUnexpectedLayout, le.Reason)
}

func TestRestore_PartialCookieFailureTolerated(t *testing.T) {
	cfg := testPlatform()
	transport := newFakeTransport()
	transport.elements[cfg.Selectors.LandingIndicator] = &fakeElement{}
	transport.setCookieErr = map[string]error{"broken": errors.New("invalid domain")}

	m := NewManager(transport, testGovernor(), cfg)
	err := m.Restore(context.Background(), []browser.Cookie{
		{Name: "auth_token", Value: "tok", Domain: ".twitter.com"},
		{Name: "broken", Value: "x", Domain: "???"},
		{Name: "ct0", Value: "csrf", Domain: ".twitter.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Len(t, transport.cookies, 2)
}

func TestRestore_ProbeFailure(t *testing.T) {
	cfg := testPlatform()
	transport := newFakeTransport() // landing indicator never appears

	m := NewManager(transport, testGovernor(), cfg)
	err := m.Restore(context.Background(), []browser.Cookie{
		{Name: "auth_token", Value: "stale", Domain: ".twitter.com"},
	})

	var re *RestoreError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestRestore_EmptyCookieSet(t *testing.T) {
	m := NewManager(newFakeTransport(), testGovernor(), testPlatform())
	err := m.Restore(context.Background(), nil)

	var re *RestoreError
	require.True(t, errors.As(err, &re))
}

func TestInvalidate_ExpiresTheSession(t *testing.T) {
	cfg := testPlatform()
	sel := cfg.Selectors
	transport := newFakeTransport()
	transport.elements[sel.UsernameInput] = &fakeElement{}
	transport.elements[sel.PasswordInput] = &fakeElement{}
	transport.elements[sel.LandingIndicator] = &fakeElement{}

	m := NewManager(transport, testGovernor(), cfg)
	require.NoError(t, m.Login(context.Background(), creds()))

	m.Invalidate()
	assert.Equal(t, StateExpired, m.State())
	_, err := m.Transport()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLogout_IsIrreversible(t *testing.T) {
	cfg := testPlatform()
	sel := cfg.Selectors
	transport := newFakeTransport()
	transport.elements[sel.UsernameInput] = &fakeElement{}
	transport.elements[sel.PasswordInput] = &fakeElement{}
	transport.elements[sel.LandingIndicator] = &fakeElement{}
	transport.cookies = []browser.Cookie{{Name: "auth_token", Value: "tok"}}

	m := NewManager(transport, testGovernor(), cfg)
	require.NoError(t, m.Login(context.Background(), creds()))
	require.NoError(t, m.Logout(context.Background()))

	assert.Equal(t, StateLoggedOut, m.State())
	assert.True(t, transport.cleared)
	_, err := m.Transport()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = m.Serialize(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
