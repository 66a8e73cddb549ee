package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/portal-go/internal/credstore"
	"github.com/tonimelisma/portal-go/internal/portal"
	"github.com/tonimelisma/portal-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a portal username and password",
		Long: `Log in to the portal. The password is read from the terminal without
echo, or from the first line of stdin with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "portal username (prompted when omitted)")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the logged-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session state, backend, and token expiry",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	stdin := bufio.NewReader(cmd.InOrStdin())

	if username == "" {
		u, err := promptLine(cmd.ErrOrStderr(), stdin, "Username: ")
		if err != nil {
			return err
		}

		username = u
	}

	if username == "" {
		return errors.New("username is required")
	}

	password, err := readPassword(cmd.ErrOrStderr(), stdin, fromStdin)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd.Context(), buildLogger())
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Login(ctx, session.Credentials{Username: username, Password: password}); err != nil {
		return err
	}

	statusf("Logged in as %s.\n", s.manager.User().Username)

	return nil
}

// promptLine writes prompt and reads one trimmed line.
func promptLine(w io.Writer, r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// readPassword reads from stdin when asked to, otherwise from the terminal
// without echo.
func readPassword(w io.Writer, stdin *bufio.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	fmt.Fprint(w, "Password: ")

	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(raw), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	wasLoggedIn := s.manager.IsAuthenticated()
	s.manager.Logout()

	if wasLoggedIn {
		statusf("Logged out.\n")
	} else {
		statusf("Not logged in; cleared any stored credentials.\n")
	}

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	User        credstore.Profile `json:"user"`
	TokenExpiry *time.Time        `json:"token_expiry,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireLogin(); err != nil {
		return err
	}

	user := s.manager.User()
	exp, hasExp := portal.TokenExpiry(s.manager.AccessToken())

	w := cmd.OutOrStdout()

	if flagJSON {
		o := whoamiOutput{User: *user}
		if hasExp {
			o.TokenExpiry = &exp
		}

		return printJSON(w, o)
	}

	fmt.Fprintf(w, "User:  %s\n", user.Username)
	fmt.Fprintf(w, "ID:    %d\n", user.ID)

	if user.Email != "" {
		fmt.Fprintf(w, "Email: %s\n", user.Email)
	}

	if user.IsStaff {
		fmt.Fprintln(w, "Role:  staff")
	}

	if hasExp {
		fmt.Fprintf(w, "Token: %s\n", tokenLine(exp, time.Now()))
	}

	return nil
}

// tokenLine describes an access-token expiry relative to now.
func tokenLine(exp, now time.Time) string {
	line := "valid until " + exp.Local().Format(time.DateTime)
	if exp.Before(now) {
		line += " (expired, refreshed on next request)"
	}

	return line
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	State          string     `json:"state"`
	APIHost        string     `json:"api_host"`
	StorageBackend string     `json:"storage_backend"`
	StoragePath    string     `json:"storage_path"`
	Username       string     `json:"username,omitempty"`
	TokenExpiry    *time.Time `json:"token_expiry,omitempty"`
	TokenExpired   bool       `json:"token_expired"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	o := buildStatus(s.manager.Snapshot(), time.Now())

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, o)
	}

	fmt.Fprintf(w, "State:    %s\n", o.State)
	fmt.Fprintf(w, "Backend:  %s\n", o.APIHost)
	fmt.Fprintf(w, "Storage:  %s (%s)\n", o.StoragePath, o.StorageBackend)

	if o.Username != "" {
		fmt.Fprintf(w, "User:     %s\n", o.Username)
	}

	if o.TokenExpiry != nil {
		fmt.Fprintf(w, "Token:    %s\n", tokenLine(*o.TokenExpiry, time.Now()))
	}

	return nil
}

func buildStatus(snap session.Snapshot, now time.Time) statusOutput {
	o := statusOutput{
		State:          snap.State.String(),
		APIHost:        resolvedCfg.APIHost,
		StorageBackend: resolvedCfg.StorageBackend,
		StoragePath:    resolvedCfg.StoragePath,
	}

	if snap.User != nil {
		o.Username = snap.User.Username
	}

	if snap.Token != nil {
		if exp, ok := portal.TokenExpiry(snap.Token.AccessToken); ok {
			o.TokenExpiry = &exp
			o.TokenExpired = exp.Before(now)
		}
	}

	return o
}

// withSession runs fn against a logged-in session inside a signal-aware
// context. Authentication failures clear the session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *cliSession) error) error {
	ctx, cancel := commandContext(cmd.Context(), buildLogger())
	defer cancel()

	s, err := authedSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.check(fn(ctx, s))
}
