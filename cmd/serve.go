package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velvetfox/velvetfox/internal/config"
	"github.com/velvetfox/velvetfox/internal/dependency"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the velvetfox agent on all enabled channels",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := dependency.New(cfg, false)
	if err != nil {
		return err
	}
	defer container.Close()

	fmt.Printf("%s Starting velvetfox...\n", logo)
	fmt.Printf("✓ Model: %s via %s\n", cfg.Provider.Model, cfg.Provider.APIBase)
	fmt.Printf("✓ Database: %s\n", cfg.DatabasePath())

	channelMgr := container.Channels()
	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled — edit", config.ConfigPath())
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return container.Queue().Run(gctx) })
	g.Go(func() error { return container.Controller().Run(gctx) })
	g.Go(func() error { return container.Sweeper().Run(gctx) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })

	fmt.Printf("%s velvetfox running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
