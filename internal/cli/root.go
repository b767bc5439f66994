package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"siecore/apps/console/internal/app"
	"siecore/apps/console/internal/config"
)

var (
	configFile string
	envFile    string
	noColor    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "console",
	Short: "Operator console for the AI core",
	Long: `console runs the operator API for the AI core and gives direct access to
its key manager, sandboxed project files, snapshots and shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if path, loaded, err := loadEnvFile(envFile); err != nil {
			log.Printf("load env file failed: path=%s err=%v", path, err)
		} else if loaded > 0 {
			log.Printf("loaded %d env values from %s", loaded, path)
		}
		if configFile != "" {
			if err := os.Setenv("CONSOLE_CONFIG_FILE", configFile); err != nil {
				return err
			}
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONSOLE_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(fsCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// openServer wires the full component graph for one-shot commands. Callers
// must Close it.
func openServer() (*app.Server, error) {
	srv, err := app.NewServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("init server failed: %w", err)
	}
	return srv, nil
}
