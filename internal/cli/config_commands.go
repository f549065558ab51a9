// Package cli provides configuration management commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopy-fm/canopy/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage canopy configuration",
		Long: `Configuration management commands.

Commands:
  show  - Display current configuration
  set   - Update and save configuration values
  test  - Test the backend connection
  path  - Show the configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// resolveConfig loads the config file plus environment without validating,
// so show and set work on a machine that has no base URL configured yet.
func resolveConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveConfig()
			if err != nil {
				return err
			}

			url := cfg.APIBaseURL
			if url == "" {
				url = "(not set)"
			}
			fmt.Printf("API URL:    %s\n", url)
			token := "(not set)"
			if cfg.APIToken != "" {
				token = "********"
			}
			fmt.Printf("API token:  %s\n", token)
			fmt.Printf("Page size:  %d\n", cfg.PageSize)
			mode := cfg.ProxyMode
			if mode == "" {
				mode = "no-proxy"
			}
			fmt.Printf("Proxy mode: %s\n", mode)
			if cfg.ProxyHost != "" {
				fmt.Printf("Proxy:      %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var (
		setURL       string
		setToken     string
		setPageSize  int
		setProxyMode string
		setProxyHost string
		setProxyPort int
		setProxyUser string
		setNoProxy   string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update and save configuration values",
		Long: `Update configuration values and save them to the config file. The
proxy password is never saved; it is prompted for at runtime.

Example:
  canopy config set --api-url https://files.example.com --page-size 25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := resolveConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("api-url") {
				cfg.APIBaseURL = setURL
			}
			if cmd.Flags().Changed("token") {
				cfg.APIToken = setToken
			}
			if cmd.Flags().Changed("page-size") {
				cfg.PageSize = setPageSize
			}
			if cmd.Flags().Changed("proxy-mode") {
				cfg.ProxyMode = setProxyMode
			}
			if cmd.Flags().Changed("proxy-host") {
				cfg.ProxyHost = setProxyHost
			}
			if cmd.Flags().Changed("proxy-port") {
				cfg.ProxyPort = setProxyPort
			}
			if cmd.Flags().Changed("proxy-user") {
				cfg.ProxyUser = setProxyUser
			}
			if cmd.Flags().Changed("no-proxy") {
				cfg.NoProxy = setNoProxy
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("✓ Configuration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&setURL, "api-url", "", "Backend base URL")
	cmd.Flags().StringVar(&setToken, "token", "", "API token")
	cmd.Flags().IntVar(&setPageSize, "page-size", 0, "Default page size")
	cmd.Flags().StringVar(&setProxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic, ntlm")
	cmd.Flags().StringVar(&setProxyHost, "proxy-host", "", "Proxy host")
	cmd.Flags().IntVar(&setProxyPort, "proxy-port", 0, "Proxy port")
	cmd.Flags().StringVar(&setProxyUser, "proxy-user", "", "Proxy user")
	cmd.Flags().StringVar(&setNoProxy, "no-proxy", "", "Comma-separated proxy bypass list")

	return cmd
}

func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the backend connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}

			counts, err := client.AggregateCounts(GetContext())
			if err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}

			fmt.Printf("✓ Connected to %s (%d folders, %d files)\n",
				client.BaseURL(), counts.TotalFolders, counts.TotalFiles)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				fmt.Println(cfgFile)
				return nil
			}
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}
