package main

import (
	"errors"
	"fmt"
	"os"

	"socialnerd/internal/browser"
	"socialnerd/internal/session"

	"github.com/spf13/cobra"
)

// loginCmd establishes a session and persists its cookies.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the platform and save the session",
	Long: `Drives the platform login flow in a headless browser and saves the
resulting cookies so later commands can reuse the session.

Credentials come from SOCIALNERD_USERNAME / SOCIALNERD_PASSWORD or an
interactive prompt. They are used once and never written to disk.

If the platform asks for a secondary verification (email or phone),
the value is prompted for and the login resumes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		creds, err := promptCredentials()
		if err != nil {
			return err
		}

		transport, err := browser.NewRodTransport(ctx, cfg.Browser)
		if err != nil {
			return err
		}
		defer transport.Close()

		mgr := session.NewManager(transport, buildGovernor(), cfg.Platform)
		err = mgr.Login(ctx, creds)

		var le *session.LoginError
		if errors.As(err, &le) && le.Reason == session.ReasonChallengeRequired {
			fmt.Printf("The platform asked for a verification value (%s).\n", mgr.ChallengeKind())
			value, perr := promptLine("Verification value: ")
			if perr != nil {
				return perr
			}
			err = mgr.SubmitChallenge(ctx, value)
		}
		if err != nil {
			return err
		}

		cookies, err := mgr.Serialize(ctx)
		if err != nil {
			return err
		}
		if err := saveCookies(cookies); err != nil {
			return fmt.Errorf("session established but saving it failed: %w", err)
		}

		fmt.Printf("Logged in. Session saved to %s\n", cookiePath())
		return nil
	},
}

// logoutCmd ends the session and removes the saved cookies.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and delete saved cookies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gov := buildGovernor()
		mgr, transport, err := openSession(ctx, gov)
		if err == nil {
			defer transport.Close()
			if lerr := mgr.Logout(ctx); lerr != nil {
				fmt.Fprintf(os.Stderr, "Warning: platform-side logout failed: %v\n", lerr)
			}
		}

		if err := os.Remove(cookiePath()); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// statusCmd reports session and quota state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and quota status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cookies, err := loadCookies(); err == nil {
			fmt.Printf("Session:  saved (%d cookies at %s)\n", len(cookies), cookiePath())
		} else {
			fmt.Println("Session:  none (run 'socialnerd login')")
		}

		g := cfg.Governor
		fmt.Printf("Quota:    %d requests / %s window, %d / 30 days\n",
			g.WindowLimit, g.WindowSize(), g.MonthlyLimit)
		fmt.Printf("Retries:  %d attempts, base delay %s, cooldown %s after a rate limit\n",
			g.MaxAttempts, g.BaseDelay(), g.CooldownOnRateLimit())
		fmt.Printf("Backend:  %s (%s)\n", cfg.Generation.Provider, cfg.Generation.Model)
		return nil
	},
}
