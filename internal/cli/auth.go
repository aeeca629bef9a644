package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fastertools/oauthkit/internal/auth"
	"github.com/fastertools/oauthkit/internal/config"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  `Manage authentication against the configured authorization server.`,
	}

	// Add subcommands
	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
	)

	return cmd
}

// loginConfigFromFlags merges flag values over the stored provider
// configuration. Flags win; anything supplied on the command line is
// persisted back on successful login.
func loginConfigFromFlags(provider config.ProviderInfo, clientID, clientSecret, deviceEndpoint, tokenEndpoint string, scopes []string, basicAuth bool) *auth.LoginConfig {
	cfg := &auth.LoginConfig{
		ClientID:       provider.ClientID,
		DeviceEndpoint: provider.DeviceEndpoint,
		TokenEndpoint:  provider.TokenEndpoint,
		Scopes:         provider.Scopes,
		ScopeDelimiter: provider.ScopeDelimiter,
		UseBasicAuth:   provider.UseBasicAuth,
	}
	if clientID != "" {
		cfg.ClientID = clientID
	}
	if clientSecret != "" {
		cfg.ClientSecret = clientSecret
	}
	if deviceEndpoint != "" {
		cfg.DeviceEndpoint = deviceEndpoint
	}
	if tokenEndpoint != "" {
		cfg.TokenEndpoint = tokenEndpoint
	}
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	if basicAuth {
		cfg.UseBasicAuth = true
	}
	return cfg
}

func newAuthLoginCmd() *cobra.Command {
	var noBrowser bool
	var force bool
	var machine bool
	var basicAuth bool
	var clientID, clientSecret string
	var deviceEndpoint, tokenEndpoint string
	var scopes []string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in using the OAuth device flow",
		Long: `Authenticate using the OAuth 2.0 device authorization grant.

A code is displayed for you to enter on a second device (or the browser
opens directly); the command polls until you approve.

For machine authentication (CI/CD pipelines), pass --machine and set the
OAUTHKIT_CLIENT_ID and OAUTHKIT_CLIENT_SECRET environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auth.NewKeyringStore()
			if err != nil {
				return fmt.Errorf("failed to initialize credential store: %w", err)
			}

			userConfig, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			loginConfig := loginConfigFromFlags(userConfig.GetProvider(),
				clientID, clientSecret, deviceEndpoint, tokenEndpoint, scopes, basicAuth)
			loginConfig.NoBrowser = noBrowser
			loginConfig.Force = force

			manager := auth.NewManager(store, loginConfig)

			// Handle machine authentication
			if machine {
				Info("Logging in as machine (client credentials)")

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if _, err := manager.LoginMachine(ctx); err != nil {
					return fmt.Errorf("machine login failed: %w", err)
				}

				Success("Successfully logged in as machine")
				fmt.Println("Note: machine tokens are typically short-lived.")
				return nil
			}

			if loginConfig.ClientID == "" || loginConfig.DeviceEndpoint == "" || loginConfig.TokenEndpoint == "" {
				return fmt.Errorf("no provider configured: pass --client-id, --device-endpoint and --token-endpoint (they are remembered after the first login)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), auth.LoginTimeout)
			defer cancel()

			// Check if already logged in
			if !force {
				if status := manager.Status(); status.LoggedIn && !status.NeedsRefresh {
					Success("Already logged in")
					if user := userConfig.GetCurrentUser(); user != nil && user.Email != "" {
						fmt.Printf("   Logged in as: %s\n", color.CyanString(user.Email))
					}
					fmt.Printf("Use %s to force re-authentication\n", color.CyanString("oauthkit auth login --force"))
					return nil
				}
			}

			deviceAuth, err := manager.StartDeviceFlow(ctx)
			if err != nil {
				return fmt.Errorf("failed to start authentication: %w", err)
			}

			// Display instructions
			fmt.Println("To complete login, visit:")
			color.Cyan("   %s", deviceAuth.VerificationURI)
			fmt.Println()
			fmt.Println("And enter code:")
			color.Yellow("   %s", deviceAuth.UserCode)
			fmt.Println()

			if !noBrowser {
				fmt.Println("Opening browser...")
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " Waiting for authorization..."
			sp.Start()
			creds, err := manager.CompleteDeviceFlow(ctx, deviceAuth)
			sp.Stop()
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			Success("Successfully logged in!")

			// Remember the provider for future runs
			_ = userConfig.SetProvider(config.ProviderInfo{
				ClientID:       loginConfig.ClientID,
				DeviceEndpoint: loginConfig.DeviceEndpoint,
				TokenEndpoint:  loginConfig.TokenEndpoint,
				Scopes:         loginConfig.Scopes,
				ScopeDelimiter: loginConfig.ScopeDelimiter,
				UseBasicAuth:   loginConfig.UseBasicAuth,
			})

			if user := userConfig.GetCurrentUser(); user != nil && user.Email != "" {
				fmt.Printf("   Logged in as: %s\n", color.CyanString(user.Email))
			}
			if creds.ExpiresAt != nil {
				duration := time.Until(*creds.ExpiresAt)
				fmt.Printf("   Access token valid for %dh %dm\n",
					int(duration.Hours()),
					int(duration.Minutes())%60)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically")
	cmd.Flags().BoolVar(&force, "force", false, "Force re-authentication even if already logged in")
	cmd.Flags().BoolVar(&machine, "machine", false, "Login as machine using client credentials")
	cmd.Flags().BoolVar(&basicAuth, "basic-auth", false, "Send client credentials in a Basic Authorization header")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client identifier")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (confidential clients only)")
	cmd.Flags().StringVar(&deviceEndpoint, "device-endpoint", "", "Device authorization endpoint URL")
	cmd.Flags().StringVar(&tokenEndpoint, "token-endpoint", "", "Token endpoint URL")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to request (repeatable)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				confirm := false
				prompt := &survey.Confirm{
					Message: "Remove stored credentials?",
					Default: true,
				}
				if err := survey.AskOne(prompt, &confirm); err != nil {
					return err
				}
				if !confirm {
					return nil
				}
			}

			store, err := auth.NewKeyringStore()
			if err != nil {
				return fmt.Errorf("failed to initialize credential store: %w", err)
			}

			manager := auth.NewManager(store, nil)
			if err := manager.Logout(); err != nil {
				if err.Error() == "not logged in" {
					Warn("Not logged in")
					return nil
				}
				return fmt.Errorf("logout failed: %w", err)
			}

			// Clear user info from config
			if cfg, err := config.Load(); err == nil {
				_ = cfg.ClearCurrentUser()
			}

			Success("Successfully logged out")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var showToken bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  `Display current authentication status and token information.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auth.NewKeyringStore()
			if err != nil {
				return fmt.Errorf("failed to initialize credential store: %w", err)
			}

			manager := auth.NewManager(store, nil)
			status := manager.Status()

			// If --show-token is used, just output the token and nothing else
			if showToken {
				if !status.LoggedIn || status.Credentials == nil {
					return fmt.Errorf("not logged in")
				}
				fmt.Print(status.Credentials.AccessToken)
				return nil
			}

			if !status.LoggedIn {
				fmt.Println("Not logged in")
				fmt.Printf("Run %s to authenticate\n", color.CyanString("oauthkit auth login"))
				return nil
			}

			Success("Logged in")
			if cfg, err := config.Load(); err == nil {
				if user := cfg.GetCurrentUser(); user != nil {
					switch {
					case user.Email != "":
						fmt.Printf("   as %s\n", color.CyanString(user.Email))
					case user.Username != "":
						fmt.Printf("   as %s\n", color.CyanString(user.Username))
					}
				}
			}

			if creds := status.Credentials; creds != nil {
				if creds.ExpiresAt != nil {
					if creds.IsExpired() {
						warnColor.Println("Access Token: Expired")
						if creds.RefreshToken != "" {
							fmt.Println("              (will auto-refresh on next use)")
						}
					} else {
						duration := time.Until(*creds.ExpiresAt)
						fmt.Printf("Access Token: Valid for %s\n",
							color.GreenString("%dh %dm", int(duration.Hours()), int(duration.Minutes())%60))
					}
				} else {
					color.Green("Access Token: Valid")
				}

				if creds.RefreshToken != "" {
					color.Green("Refresh Token: Available")
				}
				if len(creds.Scopes) > 0 {
					fmt.Printf("Scopes: %v\n", creds.Scopes)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showToken, "show-token", false, "Output only the access token (for use in scripts)")
	return cmd
}
