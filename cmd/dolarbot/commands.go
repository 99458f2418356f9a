// ABOUTME: One-shot dolarbot commands run from cron or by hand
// ABOUTME: scrape, publish-photo, summary, set-webhook, call and channels

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/config"
	"github.com/2389/dolarbot/internal/events"
	"github.com/2389/dolarbot/internal/scraper"
	"github.com/2389/dolarbot/internal/store"
)

// resolveProfile picks the named profile, falling back to the configured one.
func resolveProfile(name string, cfg *config.Config) (scraper.Profile, error) {
	if name == "" {
		name = cfg.Scraper.Profile
	}
	p, ok := scraper.ProfileByName(name)
	if !ok {
		return scraper.Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(scraper.ProfileNames(), ", "))
	}
	return p, nil
}

func newScrapeCommand(opts *rootOptions) *cobra.Command {
	var profile string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch quotes, save them and publish the post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				return runScrapeDryRun(cmd, opts, profile)
			}

			gw, cfg, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			p, err := resolveProfile(profile, cfg)
			if err != nil {
				return err
			}

			res, err := gw.ScrapeAndPublish(cmd.Context(), p)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), scraper.FormatPost(p, res))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "scrape profile (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the post without saving or publishing")
	return cmd
}

func runScrapeDryRun(cmd *cobra.Command, opts *rootOptions, profile string) error {
	cfg, logger, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := resolveProfile(profile, cfg)
	if err != nil {
		return err
	}

	s := scraper.New(&http.Client{Timeout: cfg.Scraper.Timeout}, nil, scraper.Config{
		Concurrency: cfg.Scraper.Concurrency,
	}, nil, logger)
	res := s.Fetch(cmd.Context(), p)

	text := scraper.FormatPost(p, res)
	if text == "" {
		return fmt.Errorf("no source answered for profile %s", p.Name)
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}

func newPublishPhotoCommand(opts *rootOptions) *cobra.Command {
	var source, caption string

	cmd := &cobra.Command{
		Use:   "publish-photo <url|file_id|path>",
		Short: "Send a photo to every channel of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, cfg, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			photo, err := loadPhoto(args[0])
			if err != nil {
				return err
			}
			photo.Caption = caption

			if source == "" {
				source = cfg.Scraper.Profile
			}
			n := gw.PublishPhoto(cmd.Context(), source, photo)
			fmt.Fprintf(cmd.OutOrStdout(), "photo dispatched for %s to %d listener(s)\n", source, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "service tag of the destination channels (default: configured profile)")
	cmd.Flags().StringVar(&caption, "caption", "", "photo caption (Markdown)")
	return cmd
}

// loadPhoto uploads readable local files and passes anything else through
// as a URL or file_id.
func loadPhoto(ref string) (events.Photo, error) {
	info, err := os.Stat(ref)
	if err != nil || info.IsDir() {
		return events.Photo{URL: ref}, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return events.Photo{}, fmt.Errorf("reading photo: %w", err)
	}
	return events.Photo{Data: data, FileName: filepath.Base(ref)}, nil
}

func newSummaryCommand(opts *rootOptions) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Publish last month's averages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, cfg, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			p, err := resolveProfile(profile, cfg)
			if err != nil {
				return err
			}

			text, err := gw.MonthlySummary(cmd.Context(), p, time.Now())
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no data for last month")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "scrape profile (default from config)")
	return cmd
}

func newSetWebhookCommand(opts *rootOptions) *cobra.Command {
	var secret string
	var dropPending bool

	cmd := &cobra.Command{
		Use:   "set-webhook <url>",
		Short: "Point Telegram at this bot's webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, cfg, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			if !cmd.Flags().Changed("secret") {
				secret = cfg.Server.WebhookSecret
			}

			params := botapi.NewParams("url", args[0])
			if secret != "" {
				params.Set("secret_token", secret)
			}
			if dropPending {
				params.Set("drop_pending_updates", true)
			}

			raw, err := gw.Client().Send(cmd.Context(), "setWebhook", params)
			if err != nil {
				return err
			}
			writeJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "secret_token Telegram echoes back (default: server.webhook_secret)")
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates queued while no webhook was set")
	return cmd
}

func newCallCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <action> [key=value ...]",
		Short: "Invoke any Bot API action",
		Long: `Invoke any Bot API action and print the answer.

Values that are JSON objects or arrays are sent as JSON. A value of the form
@path uploads the file at path.`,
		Example: `  dolarbot call getMe
  dolarbot call sendMessage chat_id=-100123 text=hello
  dolarbot call sendPhoto chat_id=-100123 photo=@chart.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			gw, _, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			// Parameterless actions like getMe bypass the empty payload guard
			var raw []byte
			if params.Len() == 0 {
				body, err := gw.Client().Execute(cmd.Context(), args[0], params)
				if err != nil {
					return err
				}
				raw = []byte(body)
			} else {
				raw, err = gw.Client().Send(cmd.Context(), args[0], params)
				if err != nil {
					return err
				}
			}
			writeJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

// parseParams turns key=value arguments into ordered Bot API params.
func parseParams(args []string) (*botapi.Params, error) {
	params := botapi.NewParams()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, want key=value", arg)
		}

		switch {
		case strings.HasPrefix(value, "@"):
			path := value[1:]
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", key, err)
			}
			params.Set(key, botapi.FileFromBytes(filepath.Base(path), data))
		case (strings.HasPrefix(value, "{") || strings.HasPrefix(value, "[")) && gjson.Valid(value):
			params.Set(key, json.RawMessage(value))
		default:
			params.Set(key, value)
		}
	}
	return params, nil
}

func writeJSON(out io.Writer, raw []byte) {
	b := pretty.Pretty(raw)
	if !color.NoColor {
		b = pretty.Color(b, nil)
	}
	_, _ = out.Write(b)
}

func newChannelsCommand(opts *rootOptions) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List registered channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, _, err := opts.openGateway(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			ctx := cmd.Context()
			var channels []*store.Channel
			if service != "" {
				channels, err = gw.Store().ListChannelsByService(ctx, service)
			} else {
				channels, err = gw.Store().ListChannels(ctx)
			}
			if err != nil {
				return fmt.Errorf("listing channels: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(channels) == 0 {
				fmt.Fprintln(out, "no channels registered")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSERVICE\tENV")
			for _, ch := range channels {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ch.ID, ch.Name, orDash(ch.ServiceTag), orDash(ch.EnvironmentTag))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&service, "service", "s", "", "only channels with this service tag")
	return cmd
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
