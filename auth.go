package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/widgetctl/internal/api"
	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the admin API",
		Long: "Sign in with email and password. Missing values are prompted for; " +
			"the password prompt does not echo.",
		Args: cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			stdin := cmd.InOrStdin()
			in := bufio.NewReader(stdin)

			var err error
			if email == "" {
				if email, err = promptLine(in, cc.Err, "Email: "); err != nil {
					return err
				}
			}

			if password == "" {
				if password, err = promptPassword(stdin, in, cc.Err, "Password: "); err != nil {
					return err
				}
			}

			profile, err := s.svc.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			if cc.Flags.Output != outputTable {
				return cc.render(profile, nil, nil)
			}

			cc.Statusf("Logged in as %s.\n", displayName(profile))

			return nil
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the saved token",
		Args:  cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			err := s.svc.Auth.Logout(cmd.Context())

			switch {
			case errors.Is(err, api.ErrNotLoggedIn):
				cc.Statusf("Not logged in.\n")
				return nil
			case err != nil:
				// The local session is gone either way.
				cc.Logger.Warn("server-side logout failed", slog.String("error", err.Error()))
			}

			cc.Statusf("Logged out.\n")

			return nil
		}),
	}
}

// whoamiOutput is the JSON/YAML schema for `whoami`.
type whoamiOutput struct {
	User      tokenstore.Profile `json:"user"`
	ExpiresAt time.Time          `json:"token_expires_at,omitzero"`
	Expired   bool               `json:"token_expired"`
	Transport string             `json:"transport"`
	BaseURL   string             `json:"base_url"`
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		Args:  cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			profile, err := s.svc.Auth.Me(cmd.Context())
			if err != nil {
				return err
			}

			// Me may have refreshed the token; read it after the call.
			tok, _ := s.store.Token()
			now := time.Now()

			out := whoamiOutput{
				User:      profile,
				ExpiresAt: tok.ExpiresAt,
				Expired:   tok.Expired(now),
				Transport: cc.Cfg.API.Transport,
				BaseURL:   s.client.BaseURL(),
			}

			if cc.Flags.Output != outputTable {
				return cc.render(out, nil, nil)
			}

			printWhoamiText(cc.Out, out, now)

			return nil
		}),
	}
}

func printWhoamiText(w io.Writer, out whoamiOutput, now time.Time) {
	fmt.Fprintf(w, "User:     %s\n", displayName(out.User))
	fmt.Fprintf(w, "ID:       %s\n", out.User.ID)

	if out.User.TenantID != "" {
		fmt.Fprintf(w, "Tenant:   %s\n", out.User.TenantID)
	}

	if len(out.User.Roles) > 0 {
		fmt.Fprintf(w, "Roles:    %s\n", strings.Join(out.User.Roles, ", "))
	}

	if out.Expired {
		fmt.Fprintln(w, "Token:    expired, refreshed on the next request")
	} else {
		fmt.Fprintf(w, "Token:    expires %s\n", formatUntil(out.ExpiresAt, now))
	}
	fmt.Fprintf(w, "Backend:  %s (%s)\n", out.BaseURL, out.Transport)
}

func displayName(p tokenstore.Profile) string {
	if p.Name != "" && p.Email != "" {
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	}

	if p.Email != "" {
		return p.Email
	}

	return p.ID
}

// promptLine reads one line from in after writing prompt to w.
func promptLine(in *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when src is a terminal,
// and falls back to a plain line read otherwise (for piped input).
func promptPassword(src io.Reader, in *bufio.Reader, w io.Writer, prompt string) (string, error) {
	f, ok := src.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptLine(in, w, prompt)
	}

	fd := int(f.Fd())

	fmt.Fprint(w, prompt)

	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(pw), nil
}
