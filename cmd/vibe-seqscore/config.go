package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-seqscore/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-seqscore configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.vibe-seqscore.yaml.",
		Example: `  vibe-seqscore config                                  # show effective config
  vibe-seqscore config set foundation.url http://evo:8000  # point at the Evo2 service
  vibe-seqscore config set cache_url redis://localhost:6379/0
  vibe-seqscore config get oracle.mode                     # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), c.v)
		},
	}

	cmd.AddCommand(newConfigSetCmd(c))
	cmd.AddCommand(newConfigGetCmd(c))

	return cmd
}

func newConfigSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.v.ConfigFileUsed()
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := runConfigSet(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], path)
			return nil
		},
	}
}

func newConfigGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val := c.v.Get(args[0])
			if val == nil {
				return fmt.Errorf("key %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}
}

// runConfigShow prints the effective settings (defaults, file, environment).
func runConfigShow(w io.Writer, v *viper.Viper) error {
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if f := v.ConfigFileUsed(); f != "" {
		fmt.Fprintf(w, "# Config file: %s\n", f)
	} else {
		fmt.Fprintf(w, "# No config file. Defaults are written to ~/%s.yaml by `config set`.\n", config.FileName)
	}
	_, err = w.Write(out)
	return err
}

// runConfigSet updates key in the config file at path. Only values already
// in the file are kept; defaults and environment overrides are not persisted.
func runConfigSet(path, key, value string) error {
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}

	file.Set(key, parseValue(value))

	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// parseValue interprets boolean-like and numeric values so they round-trip
// through YAML with their natural type.
func parseValue(value string) any {
	switch value {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
