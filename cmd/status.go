package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/velvetfox/velvetfox/internal/config"
	"github.com/velvetfox/velvetfox/internal/providers"
	"github.com/velvetfox/velvetfox/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show velvetfox status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s velvetfox Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Model:     %s\n", cfg.Provider.Model)
	fmt.Printf("Endpoint:  %s ", cfg.Provider.APIBase)

	p := providers.NewOpenAIProvider(cfg.Provider.APIBase, cfg.Provider.APIKey, cfg.Provider.Model)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		fmt.Printf("✗ (%v)\n", err)
	} else {
		fmt.Println("✓")
	}

	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Printf("Database:  %s ✗ (not created yet)\n", dbPath)
		return nil
	}

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Printf("Database:  %s ✗ (%v)\n", dbPath, err)
		return nil
	}
	defer st.Close()

	chats, err := st.ListChats(ctx)
	if err != nil {
		fmt.Printf("Database:  %s ✗ (%v)\n", dbPath, err)
		return nil
	}
	fmt.Printf("Database:  %s ✓ (%d chats)\n", dbPath, len(chats))
	return nil
}
