// Command sentinel-mfa logs in against a sentinel-mfa server from the
// terminal, enrolling a TOTP authenticator on first use.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/FilipeAphrody/sentinel-mfa/internal/client"
	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/internal/launcher"
	"github.com/FilipeAphrody/sentinel-mfa/internal/logger"
	"github.com/FilipeAphrody/sentinel-mfa/internal/tui"
)

const maxCodeAttempts = 3

var (
	serverURL string
	logLevel  string
	email     string
)

var rootCmd = &cobra.Command{
	Use:           "sentinel-mfa",
	Short:         "Terminal client for the sentinel-mfa server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in, prompting for a TOTP code when the account requires one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := logger.New(logLevel)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		c := client.New(serverURL, nil)
		session, err := login(cmd.Context(), c, password, launcher.New(log), log)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(session)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the sentinel-mfa server")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level written to stderr")

	loginCmd.Flags().StringVar(&email, "email", "", "account email")
	_ = loginCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// login runs the password step and, if challenged, prompts for the code
// until it is accepted or the attempts run out.
func login(ctx context.Context, c *client.Client, password string, opener *launcher.Launcher, log *zap.Logger) (*domain.AuthResponse, error) {
	res, err := c.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return nil, errors.New("invalid email or password")
		}
		return nil, err
	}
	if res.Session != nil {
		return res.Session, nil
	}

	ch := res.Challenge
	message := ch.Message
	for attempt := 1; ; attempt++ {
		code, err := tui.Prompt(message, ch.Code, opener)
		if err != nil {
			return nil, err
		}

		session, err := c.Verify(ctx, ch.State.State, code)
		if err == nil {
			return session, nil
		}

		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || attempt >= maxCodeAttempts {
			return nil, err
		}
		log.Debug("code rejected", zap.Int("attempt", attempt), zap.String("key", apiErr.TranslationKey))
		message = apiErr.Message + ", try again"
	}
}

// readPassword reads without echo from a terminal, or a single line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
