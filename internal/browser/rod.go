package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"socialnerd/internal/config"
	"socialnerd/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodTransport drives a Chromium instance over CDP.
type RodTransport struct {
	cfg     config.BrowserConfig
	browser *rod.Browser
	page    *rod.Page
}

var _ Transport = (*RodTransport)(nil)

// NewRodTransport launches (or connects to) Chromium and opens the single
// page this process will use. Launch flags mask the automation fingerprint.
func NewRodTransport(ctx context.Context, cfg config.BrowserConfig) (*RodTransport, error) {
	launch := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		launch = launch.Bin(cfg.Bin)
	}
	launch = launch.
		Set(flags.Flag("no-sandbox")).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-extensions")).
		Set(flags.Flag("disable-infobars")).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled")

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("launch chrome: %w", err)}
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("connect to chrome: %w", err)}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, &UnavailableError{Err: fmt.Errorf("create page: %w", err)}
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.GetViewportWidth(),
		Height:            cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Browser("warning: failed to set viewport: %v", err)
	}

	if cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent: cfg.UserAgent,
		}).Call(page); err != nil {
			logging.Browser("warning: failed to set user agent: %v", err)
		}
	}

	logging.Browser("transport ready (headless=%v viewport=%dx%d)",
		cfg.Headless, cfg.GetViewportWidth(), cfg.GetViewportHeight())

	return &RodTransport{cfg: cfg, browser: b, page: page}, nil
}

// Navigate loads url and waits for the load event, bounded by the
// configured navigation timeout.
func (t *RodTransport) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx).Timeout(t.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	// Best effort: some surfaces keep long-polling connections open and
	// never fire a clean load event.
	_ = p.WaitLoad()
	logging.BrowserDebug("navigated to %s", url)
	return nil
}

// WaitVisible locates selector and waits until it is visible.
func (t *RodTransport) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	p := t.page.Context(ctx).Timeout(timeout)
	el, err := p.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("element %q not visible: %w", selector, err)
	}
	return &rodElement{el: el}, nil
}

// Eval runs a JS function expression and returns the JSON-encoded result.
func (t *RodTransport) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := t.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal eval result: %w", err)
	}
	return raw, nil
}

// Cookies snapshots all cookies visible to the current page.
func (t *RodTransport) Cookies(ctx context.Context) ([]Cookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(t.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

// SetCookie applies a single cookie to the page.
func (t *RodTransport) SetCookie(ctx context.Context, c Cookie) error {
	param := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if c.Expires > 0 {
		param.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	if c.SameSite != "" {
		param.SameSite = proto.NetworkCookieSameSite(c.SameSite)
	}
	if err := t.page.Context(ctx).SetCookies([]*proto.NetworkCookieParam{param}); err != nil {
		return fmt.Errorf("set cookie %s: %w", c.Name, err)
	}
	return nil
}

// ClearCookies drops every cookie in the browser.
func (t *RodTransport) ClearCookies(ctx context.Context) error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(t.page.Context(ctx)); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// Close shuts the page and the browser down.
func (t *RodTransport) Close() error {
	if t.page != nil {
		_ = t.page.Close()
	}
	if t.browser != nil {
		return t.browser.Close()
	}
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	// Overlays sometimes intercept the synthetic pointer; a direct DOM
	// click still lands.
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) PressEnter(ctx context.Context) error {
	return e.el.Context(ctx).Type(input.Enter)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}
