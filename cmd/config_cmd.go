package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"design-coach/internal/config"
)

var (
	viewPublic   bool
	defaultsPath string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the master configuration",
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and environment overrides.
With --public only the display-safe projection is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if viewPublic {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Public())
		}
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and report every problem",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s is valid (%d stages, provider %s, mock %t)\n",
			configPath, len(cfg.Stages()), cfg.Model.Provider, cfg.Model.MockResponses)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set KEY VALUE",
	Short:   "Set one value, e.g. model.temperature 0.5",
	Args:    cobra.ExactArgs(2),
	Example: "  coach config set model.mock_responses false",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(configPath, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s = %s\n", args[0], args[1])
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the configuration with the defaults file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(defaultsPath); err != nil {
			return fmt.Errorf("defaults file: %w", err)
		}
		if err := config.Reset(configPath, defaultsPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s reset from %s\n", configPath, defaultsPath)
		return nil
	},
}

func init() {
	configViewCmd.Flags().BoolVar(&viewPublic, "public", false, "Print only the display-safe projection as JSON")
	configResetCmd.Flags().StringVar(&defaultsPath, "defaults", "config/defaults.yaml", "Defaults file to copy from")

	configCmd.AddCommand(configViewCmd, configValidateCmd, configSetCmd, configResetCmd)
}
