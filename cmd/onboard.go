package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/velvetfox/velvetfox/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and data directory",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	dataDir := cfg.DataPath()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("✓ Data directory at %s\n", dataDir)

	createContentTemplates(dataDir)

	fmt.Printf("\n%s velvetfox is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Point %s at your completion endpoint (LM Studio runs on http://localhost:1234/v1)\n", cfgPath)
	fmt.Println("  2. Chat in the terminal: velvetfox chat")
	fmt.Println("  3. Or enable a channel and run: velvetfox serve")
	return nil
}

// createContentTemplates seeds empty persona and scenery catalog files so
// users can see where custom entries go.
func createContentTemplates(dataDir string) {
	templates := map[string]string{
		"personas.yaml": `# Custom personas. Each entry needs an id, a name, and the persona text.
#
# - id: pirate-captain
#   name: Pirate Captain
#   description: A boisterous sea captain.
#   text: You are a boisterous pirate captain who peppers speech with nautical slang.
`,
		"sceneries.yaml": `# Custom sceneries. Each entry needs an id, a name, and the scene text.
#
# - id: orbital-station
#   name: Orbital Station
#   description: A quiet research station in orbit.
#   text: A quiet research station orbiting a gas giant, humming with distant machinery.
`,
	}

	for filename, content := range templates {
		p := filepath.Join(dataDir, filename)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			_ = os.WriteFile(p, []byte(content), 0o644)
			fmt.Printf("  Created %s\n", filename)
		}
	}
}
