package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/config"
)

// ConfigCmd inspects the resolved configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Meridian configuration",
	Long: `Inspect Meridian configuration.

Configuration is loaded from meridian.toml (current directory, walking up,
then ~/.meridian/) and MERIDIAN_* environment variables.

Examples:
  meridian config show   # Show resolved configuration
  meridian config path   # Show which config file was used`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		output, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which configuration file is in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(); err != nil {
			return err
		}
		used := config.GetViper().ConfigFileUsed()
		if used == "" {
			fmt.Println("(no config file found, using defaults)")
			return nil
		}
		fmt.Println(used)
		return nil
	},
}

var configRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show resolved propagation rules and fusion weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, rules, err := loadConfig()
		if err != nil {
			return err
		}

		if cfg.Rules.Path == "" {
			fmt.Println("(no rules file configured, using built-in defaults)")
		} else {
			fmt.Printf("rules file: %s\n", cfg.Rules.Path)
		}

		output, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configPathCmd)
	ConfigCmd.AddCommand(configRulesCmd)
}
