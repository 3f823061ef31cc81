package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage portal configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force    bool
		adminKey string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default portal.yaml configuration file",
		Example: `  portal config init --admin-key sk-admin-...
  portal config init  # prompts for the upstream admin key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force, adminKey)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "Upstream admin key (prompted if omitted)")

	return cmd
}

const defaultConfigTemplate = `# Portal Configuration

server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
  cors:
    origins:
      - "*"
  rate_limit:
    account_per_minute: 10
    mutate_per_minute: 30

# Key-management backend the portal fronts
upstream:
  endpoint: ""   # e.g. https://gateway.internal:4000
  admin_key: "%s"
  user_role: internal_user
  max_parallel_requests: 4
  team_extended: chatapi-auth0
  team_permissionless: chatapi-pless

# External session cache (optional; empty host means in-process sessions)
redis:
  host: ""
  port: 6379
  password: ""   # Or set via PORTAL_REDIS_PASSWORD
  db: 0

# CAPTCHA verification
captcha:
  secret: ""     # Or set via PORTAL_CAPTCHA_SECRET
  verify_url: "" # Defaults to the standard siteverify endpoint

# Cookies and provider token verification
auth:
  oauth_cookie: appSession
  oauth_secret: ""  # Or set via PORTAL_OAUTH_SECRET
  session_cookie: chatapi-session
  secure_cookies: true

# Key issuance
keys:
  expires_by: ""  # Optional absolute deadline, RFC 3339 or YYYY-MM-DD

# Logging
logging:
  level: info    # debug, info, warn, error
  format: text   # text or json
`

func runConfigInit(force bool, adminKey string) error {
	path := "portal.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	// Prompt for the admin key if not provided; it never echoes
	if adminKey == "" {
		fmt.Print("Upstream admin key (leave empty to fill in later): ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read admin key: %w", err)
		}
		fmt.Println()
		adminKey = strings.TrimSpace(string(keyBytes))
	}

	content := fmt.Sprintf(defaultConfigTemplate, adminKey)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Edit the file to point upstream.endpoint at your gateway, then run 'portal serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	// Ensure config is loaded
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'portal config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}
