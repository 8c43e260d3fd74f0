// Package browser provides the interactive transport the session, discovery
// and posting layers drive. Concrete DOM selectors arrive from config; this
// package only knows how to navigate, wait, read and type.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cookie is a serializable session cookie. Round-trips through JSON so a
// caller can persist one login across process restarts.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // seconds since epoch
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// Element is an interactive handle to one located DOM node.
type Element interface {
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}

// Transport is a navigable, interactive browsing handle. One transport
// backs one logical session; concurrent use is not supported since the
// underlying surface is stateful.
type Transport interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element or
	// the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Eval runs a JS function expression in the page and returns its
	// result as JSON.
	Eval(ctx context.Context, js string) (json.RawMessage, error)

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookie(ctx context.Context, c Cookie) error
	ClearCookies(ctx context.Context) error

	Close() error
}

// UnavailableError reports that the transport could not be initialized or
// has died. Fatal: no session is possible on top of it.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("transport unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
