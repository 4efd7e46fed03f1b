package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pagepick/backend/internal/config"
	"github.com/pagepick/backend/internal/fetch"
	"github.com/pagepick/backend/internal/overlay"
	"github.com/pagepick/backend/internal/repository"
	"github.com/pagepick/backend/internal/selector"
	"github.com/pagepick/backend/internal/session"
	"github.com/pagepick/backend/internal/ws"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath  string
		pageURL  string
		relayURL string
		server   string
	)

	root := &cobra.Command{
		Use:          "pagepick-viewer",
		Short:        "Headless page viewer that picks elements and shares them over the relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.Realtime.URL = relayURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, pageURL, server)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")
	root.Flags().StringVarP(&pageURL, "url", "u", "", "page to open on start")
	root.Flags().StringVar(&relayURL, "relay", "", "relay WebSocket URL (overrides realtime.url)")
	root.Flags().StringVar(&server, "server", "", "load pages through this pagepick server's /api/page instead of directly")
	return root
}

func run(ctx context.Context, cfg *config.Config, pageURL, server string) error {
	log := cfg.NewLogger()

	store, closeStore, err := repository.Open(ctx, repository.Options{
		Driver:        cfg.Store.Driver,
		SQLitePath:    cfg.Store.SQLitePath,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	fetcher, err := fetch.New(fetch.Config{
		Mode:      cfg.Fetch.Mode,
		Timeout:   cfg.Fetch.Timeout,
		Sanitize:  cfg.Fetch.Sanitize,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if server != "" {
		fetcher = &proxyFetcher{server: strings.TrimRight(server, "/"), next: fetcher}
	}

	channel := ws.NewChannel(ws.ChannelConfig{
		URL:     cfg.Realtime.URL,
		Backoff: cfg.Realtime.ReconnectBackoff,
		Logger:  log,
	})
	defer channel.Close()

	coord := session.NewCoordinator(session.Config{
		Overlay: overlay.New(overlay.Config{
			HoldDelay: cfg.Overlay.HoldDelay,
			Deriver:   selector.Deriver{Positional: cfg.Selector.Positional},
		}),
		Channel:        channel,
		Fetcher:        fetcher,
		Store:          store,
		BroadcastHover: cfg.Realtime.BroadcastHover,
		Logger:         log,
	})
	channel.Connect(ctx)

	if pageURL != "" {
		if _, err := coord.Navigate(ctx, pageURL); err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
		}
	}

	return newConsole(coord, os.Stdin, os.Stdout).Run(ctx)
}

// proxyFetcher loads pages through a pagepick server so the viewer sees the
// same sanitized HTML as every other viewer.
type proxyFetcher struct {
	server string
	next   fetch.Fetcher
}

func (f *proxyFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if _, err := fetch.ValidateURL(pageURL); err != nil {
		return "", err
	}
	return f.next.Fetch(ctx, f.server+"/api/page?url="+url.QueryEscape(pageURL))
}
