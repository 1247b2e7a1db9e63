package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/chanreset/internal/config"
	"github.com/flemzord/chanreset/internal/security"
	"github.com/flemzord/chanreset/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, path, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", path)
			fmt.Fprintf(out, "  managed categories: %d\n", len(cfg.Discord.ManagedCategories))
			fmt.Fprintf(out, "  store:              %s\n", cfg.Store.Driver)
			fmt.Fprintf(out, "  reset interval:     %d-%d days\n", cfg.Schedule.MinDays, cfg.Schedule.MaxDays)

			if show, _ := cmd.Flags().GetBool("print"); show {
				return printRedacted(out, cfg)
			}
			return nil
		},
	}
	check.Flags().Bool("print", false, "Print the effective configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}

// printRedacted writes cfg as YAML after masking secret-looking keys.
func printRedacted(w io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}

	r := security.NewRedactor()
	r.AddLiteral(cfg.Discord.Token)
	r.RedactMap(m)

	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
