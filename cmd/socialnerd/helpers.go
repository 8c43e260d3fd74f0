package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/governor"
	"socialnerd/internal/session"
)

func buildGovernor() *governor.Governor {
	g := cfg.Governor
	return governor.New(governor.Policy{
		MaxAttempts:         g.MaxAttempts,
		BaseDelay:           g.BaseDelay(),
		Jitter:              g.Jitter(),
		CooldownOnRateLimit: g.CooldownOnRateLimit(),
		WindowLimit:         g.WindowLimit,
		WindowSize:          g.WindowSize(),
		MonthlyLimit:        g.MonthlyLimit,
	})
}

func cookiePath() string {
	return filepath.Join(cfg.Logging.Dir, "cookies.json")
}

func loadCookies() ([]browser.Cookie, error) {
	data, err := os.ReadFile(cookiePath())
	if err != nil {
		return nil, err
	}
	return browser.UnmarshalCookies(data)
}

func saveCookies(cookies []browser.Cookie) error {
	data, err := browser.MarshalCookies(cookies)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cookiePath()), 0o755); err != nil {
		return err
	}
	// Session cookies are credentials; keep them out of other users' reach.
	return os.WriteFile(cookiePath(), data, 0o600)
}

// openSession connects a browser and restores the persisted session.
// The caller owns the returned transport and must Close it.
func openSession(ctx context.Context, gov *governor.Governor) (*session.Manager, browser.Transport, error) {
	cookies, err := loadCookies()
	if err != nil {
		return nil, nil, fmt.Errorf("no saved session, run 'socialnerd login' first: %w", err)
	}

	transport, err := browser.NewRodTransport(ctx, cfg.Browser)
	if err != nil {
		return nil, nil, err
	}

	mgr := session.NewManager(transport, gov, cfg.Platform)
	if err := mgr.Restore(ctx, cookies); err != nil {
		transport.Close()
		return nil, nil, fmt.Errorf("saved session is no longer valid, run 'socialnerd login' again: %w", err)
	}
	return mgr, transport, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptCredentials() (config.Credentials, error) {
	if creds, ok := config.CredentialsFromEnv(); ok {
		return creds, nil
	}
	identifier, err := promptLine("Username or email: ")
	if err != nil {
		return config.Credentials{}, err
	}
	secret, err := promptLine("Password: ")
	if err != nil {
		return config.Credentials{}, err
	}
	return config.Credentials{Identifier: identifier, Secret: secret}, nil
}
