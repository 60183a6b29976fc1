package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velvetfox/velvetfox/internal/config"
	"github.com/velvetfox/velvetfox/internal/dependency"
)

var chatConfigPath string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConfigPath, "config", "c", "", "Config file path")
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(chatConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Terminal-only session: the network channels stay off even when the
	// config enables them for serve.
	cfg.Channels.Telegram.Enabled = false
	cfg.Channels.Slack.Enabled = false
	cfg.Channels.Bridge.Enabled = false

	container, err := dependency.New(cfg, true)
	if err != nil {
		return err
	}
	defer container.Close()

	fmt.Printf("%s velvetfox — %s\n", logo, cfg.Provider.Model)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return container.Queue().Run(gctx) })
	g.Go(func() error { return container.Controller().Run(gctx) })
	g.Go(func() error {
		// The REPL returning on "exit" unwinds the queue and controller too.
		defer stop()
		return container.Channels().StartAll(gctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
