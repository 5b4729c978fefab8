// Package main provides the Courier CLI, a terminal client for the chat
// backend's realtime messaging layer.
//
// # Basic Usage
//
// Log in and list rooms:
//
//	courier login --email ana@example.com
//	courier rooms list
//
// Open a live chat view:
//
//	courier chat <room-id>
//
// # Environment Variables
//
//   - COURIER_CONFIG: Path to configuration file (default: courier.yaml)
//   - COURIER_PASSWORD: Password for non-interactive login
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/courier/internal/api"
	"github.com/haasonsaas/courier/internal/auth"
	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "courier",
		Short:        "Courier - realtime group chat client",
		Long:         "Courier is a terminal client for group chat with live messaging,\ntyping indicators, and quick-reply suggestions.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (or set COURIER_CONFIG)")

	rootCmd.AddCommand(
		buildLoginCmd(),
		buildRegisterCmd(),
		buildLogoutCmd(),
		buildStatusCmd(),
		buildUsersCmd(),
		buildRoomsCmd(),
		buildChatCmd(),
	)
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("COURIER_CONFIG")
	}
	if path == "" {
		path = "courier.yaml"
	}
	return config.LoadOrDefault(path)
}

func newLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// tokenPath is where the CLI persists the bearer token between runs.
func tokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".courier", "token"), nil
}

// restoreAuth rebuilds the auth store from the persisted token, if any.
// An expired or malformed token is discarded silently.
func restoreAuth() *auth.Store {
	store := auth.NewStore()
	path, err := tokenPath()
	if err != nil {
		return store
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	token := strings.TrimSpace(string(raw))
	user, err := auth.ParseIdentity(token)
	if err != nil {
		return store
	}
	store.SetAuth(*user, token)
	return store
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func clearToken() error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func newAPIClient(cfg *config.Config, store *auth.Store) *api.Client {
	return api.NewClient(cfg.Server.APIURL, store,
		api.WithTimeout(cfg.Server.RequestTimeout()),
	)
}

func buildLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				password = os.Getenv("COURIER_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				password = strings.TrimSpace(line)
			}

			client := newAPIClient(cfg, auth.NewStore())
			resp, err := client.Login(cmd.Context(), models.LoginRequest{Email: email, Password: password})
			if err != nil {
				return err
			}
			if err := saveToken(resp.AccessToken); err != nil {
				return fmt.Errorf("persist token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", resp.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set COURIER_PASSWORD)")
	return cmd
}

func buildRegisterCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password are required")
			}

			client := newAPIClient(cfg, auth.NewStore())
			resp, err := client.Register(cmd.Context(), models.RegisterRequest{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", resp.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func buildLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the persisted session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := restoreAuth()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API URL:    %s\n", cfg.Server.APIURL)
			fmt.Fprintf(out, "Socket URL: %s\n", cfg.Server.SocketURL)
			if user := store.User(); user != nil {
				fmt.Fprintf(out, "Signed in:  %s (%s)\n", user.Username, user.ID)
			} else {
				fmt.Fprintln(out, "Signed in:  no")
			}
			return nil
		},
	}
}

func buildUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List all registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newAPIClient(cfg, restoreAuth())
			users, err := client.Users(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, user := range users {
				fmt.Fprintf(out, "%s\t%s\t%s\n", user.ID, user.Username, user.Email)
			}
			return nil
		},
	}
}
