package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/g19d/internal/config"
)

var configOpts struct {
	yaml  bool
	force bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults have been applied and the file
has been validated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		var data []byte
		if configOpts.yaml {
			data, err = yaml.Marshal(cfg)
		} else {
			data, err = toml.Marshal(cfg)
		}
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if info, err := os.Stat(path); err == nil && !configOpts.force {
			return fmt.Errorf("%s already exists (modified %s), use --force to overwrite",
				path, humanize.Time(info.ModTime()))
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)

	configShowCmd.Flags().BoolVar(&configOpts.yaml, "yaml", false, "Print as YAML instead of TOML")
	configInitCmd.Flags().BoolVar(&configOpts.force, "force", false, "Overwrite an existing file")
}
