package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/auth"
	"github.com/spf13/cobra"
)

var (
	loginCode        string
	loginToken       string
	loginExpiresAt   string
	loginCallbackURL string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the Ally backend",
	Long: `Sign in to the Ally backend.

Without flags, ally prints the sign-in address and waits for you to paste
either the authorization code or the full address you were redirected to.

Examples:
  ally login
  ally login --code 4/0AX...
  ally login --callback-url "http://localhost:5173/?access_token=...&email=..."
  ally login --token eyJ... --expires-at 2026-12-31T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		creds, err := runLogin(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		who := creds.Email
		if who == "" {
			who = creds.Name
		}
		if who != "" {
			utils.OutputSuccess("Logged in as %s", who)
		} else {
			utils.OutputSuccess("Logged in")
		}
		return nil
	},
}

// runLogin resolves credentials from whichever flag was given, or
// interactively from in, and stores them.
func runLogin(ctx context.Context, a *app, in io.Reader, out io.Writer) (auth.Credentials, error) {
	switch {
	case loginToken != "":
		expires, err := auth.ParseExpiry(loginExpiresAt)
		if err != nil {
			return auth.Credentials{}, err
		}
		creds := auth.Credentials{AccessToken: strings.TrimSpace(loginToken), ExpiresAt: expires}
		return creds, a.creds.Save(creds)
	case loginCallbackURL != "":
		return saveCallback(a, loginCallbackURL)
	case loginCode != "":
		return a.authClient().Exchange(ctx, loginCode)
	}

	fmt.Fprintf(out, "Open this address in your browser to sign in:\n\n  %s/auth/google-auth\n\n", a.server.URL)
	fmt.Fprint(out, "Paste the authorization code or the address you were sent to: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return auth.Credentials{}, fmt.Errorf("read authorization code: %w", err)
	}
	line = strings.TrimSpace(line)
	if strings.Contains(line, "://") {
		return saveCallback(a, line)
	}
	return a.authClient().Exchange(ctx, line)
}

func saveCallback(a *app, rawURL string) (auth.Credentials, error) {
	creds, err := auth.ParseCallback(rawURL)
	if err != nil {
		return auth.Credentials{}, err
	}
	return creds, a.creds.Save(creds)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if a.creds.Token() == "" {
			utils.OutputInfo("Not logged in")
			return nil
		}
		confirmed, err := a.authClient().Logout(cmd.Context())
		if err != nil {
			return err
		}
		if !confirmed {
			utils.OutputWarning("The server did not confirm the logout; the local token was removed anyway.")
		}
		utils.OutputSuccess("Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server, project and sign-in state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), a, time.Now())
		return nil
	},
}

func printStatus(w io.Writer, a *app, now time.Time) {
	fmt.Fprintf(w, "Server:   %s\n", a.server.URL)
	project := a.server.Project
	if project == "" {
		project = "(none)"
	}
	fmt.Fprintf(w, "Project:  %s\n", project)
	if a.cfgPath != "" {
		fmt.Fprintf(w, "Config:   %s\n", a.cfgPath)
	}

	creds := a.creds.Credentials()
	switch {
	case creds.AccessToken == "":
		fmt.Fprintln(w, "Auth:     logged out")
	case !creds.Valid(now):
		fmt.Fprintf(w, "Auth:     expired at %s\n", creds.ExpiresAt.Local().Format(time.RFC1123))
	default:
		who := creds.Email
		if who == "" {
			who = creds.Name
		}
		if who == "" {
			who = "unknown user"
		}
		line := "Auth:     logged in as " + who
		if !creds.ExpiresAt.IsZero() {
			line += fmt.Sprintf(" (expires in %s)", creds.ExpiresAt.Sub(now).Round(time.Minute))
		}
		fmt.Fprintln(w, line)
	}
}

func init() {
	loginCmd.Flags().StringVar(&loginCode, "code", "", "Authorization code to exchange for a token")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Store this access token directly")
	loginCmd.Flags().StringVar(&loginExpiresAt, "expires-at", "", "Expiry for --token (RFC 3339 or unix seconds)")
	loginCmd.Flags().StringVar(&loginCallbackURL, "callback-url", "", "Address the backend redirected you to after signing in")
	loginCmd.MarkFlagsMutuallyExclusive("code", "token", "callback-url")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}
