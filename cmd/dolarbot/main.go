// ABOUTME: Entry point for the dolarbot CLI
// ABOUTME: Serves the Telegram webhook and runs one-shot scrape, publish and Bot API commands

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/dolarbot/internal/config"
	"github.com/2389/dolarbot/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _       _            _           _
  __| | ___ | | __ _ _ __| |__   ___ | |_
 / _' |/ _ \| |/ _' | '__| '_ \ / _ \| __|
| (_| | (_) | | (_| | |  | |_) | (_) | |_
 \__,_|\___/|_|\__,_|_|  |_.__/ \___/ \__|
`

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

// getConfigPath returns the path to the config file.
// Priority: --config flag > DOLARBOT_CONFIG env var > XDG_CONFIG_HOME/dolarbot/config.yaml > ~/.config/dolarbot/config.yaml
func (o *rootOptions) getConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if envPath := os.Getenv("DOLARBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dolarbot", "config.yaml")
}

func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging, cmd.ErrOrStderr()), nil
}

// openGateway builds every component without listening. Callers must Close it.
func (o *rootOptions) openGateway(cmd *cobra.Command) (*gateway.Gateway, *config.Config, error) {
	cfg, logger, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating gateway: %w", err)
	}
	return gw, cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dolarbot",
		Short:         "Telegram bot that publishes exchange rates to registered channels",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/dolarbot/config.yaml)")

	cmd.AddCommand(
		newServeCommand(opts),
		newScrapeCommand(opts),
		newPublishPhotoCommand(opts),
		newSummaryCommand(opts),
		newSetWebhookCommand(opts),
		newCallCommand(opts),
		newChannelsCommand(opts),
		newHealthCommand(opts),
	)
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive webhook updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	configPath := opts.getConfigPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, logger, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	printStartup(out, configPath, cfg)

	logger.Info("starting dolarbot",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"webhook_path", cfg.Server.WebhookPath,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(cmd.Context())
}

func printStartup(out io.Writer, configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	line := func(label, value string) {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "%-10s %s\n", label+":", value)
	}

	line("Config", configPath)
	line("Database", cfg.Database.Path)
	line("Profile", cfg.Scraper.Profile)
	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "%-10s ", "Tailscale:")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(out, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		line("HTTP", cfg.Server.HTTPAddr)
	}
	line("Webhook", cfg.Server.WebhookPath)
	if cfg.Metrics.Enabled {
		line("Metrics", cfg.Metrics.Path)
	}
	fmt.Fprintln(out)
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running server is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Server.HTTPAddr == "" {
				return fmt.Errorf("server.http_addr is not set")
			}
			return checkHealth(cmd.Context(), cmd.OutOrStdout(), "http://"+cfg.Server.HTTPAddr+"/health/ready")
		},
	}
}

func checkHealth(ctx context.Context, out io.Writer, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "healthy")
	return nil
}
