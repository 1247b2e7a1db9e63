package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/chanreset/internal/config"
)

// initAnswers holds what the setup wizard asks for.
type initAnswers struct {
	Token             string
	Categories        string
	AdoptExisting     bool
	GraveyardChannel  string
	ArchiveFiles      bool
	Driver            string
	DSN               string
	MinDays, MaxDays  string
	EnableAdminServer bool
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			force, _ := cmd.Flags().GetBool("force")

			cfgPath := filepath.Join(dir, config.FileName)
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}

			answers := initAnswers{Driver: config.DriverFile, MinDays: "1", MaxDays: "14"}
			if err := runWizard(&answers); err != nil {
				return err
			}

			cfgYAML, env, err := renderInit(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, cfgYAML, 0o600); err != nil {
				return err
			}
			envPath := filepath.Join(dir, ".env")
			if err := godotenv.Write(env, envPath); err != nil {
				return err
			}
			if err := os.Chmod(envPath, 0o600); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", cfgPath, envPath)
			return nil
		},
	}
	cmd.Flags().String("dir", ".", "Directory to write chanreset.yaml and .env into")
	cmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	return cmd
}

func runWizard(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token).
				Validate(required("token")),
			huh.NewInput().
				Title("Managed category IDs").
				Description("Comma separated. Channels in these categories are reset.").
				Value(&a.Categories).
				Validate(func(s string) error {
					_, err := parseIDs(s)
					return err
				}),
			huh.NewConfirm().
				Title("Schedule channels that already exist?").
				Value(&a.AdoptExisting),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Graveyard channel ID").
				Description("Transcripts are posted here before a reset. Leave empty to skip.").
				Value(&a.GraveyardChannel).
				Validate(optionalID),
			huh.NewConfirm().
				Title("Also keep transcripts on disk?").
				Value(&a.ArchiveFiles),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Task store").
				Options(huh.NewOptions(config.DriverFile, config.DriverSQLite, config.DriverPostgres)...).
				Value(&a.Driver),
			huh.NewInput().
				Title("Minimum days between resets").
				Value(&a.MinDays).
				Validate(positiveInt),
			huh.NewInput().
				Title("Maximum days between resets").
				Value(&a.MaxDays).
				Validate(positiveInt),
			huh.NewConfirm().
				Title("Enable the admin HTTP server on 127.0.0.1:8080?").
				Value(&a.EnableAdminServer),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("PostgreSQL DSN").
				Value(&a.DSN).
				Validate(required("dsn")),
		).WithHideFunc(func() bool { return a.Driver != config.DriverPostgres }),
	)
	return form.Run()
}

// renderInit turns wizard answers into a configuration file and the .env
// entries it references. Secrets only ever land in the .env map.
func renderInit(a initAnswers) ([]byte, map[string]string, error) {
	cats, err := parseIDs(a.Categories)
	if err != nil {
		return nil, nil, err
	}
	minDays, maxDays, err := parseDays(a.MinDays, a.MaxDays)
	if err != nil {
		return nil, nil, err
	}

	env := map[string]string{"DISCORD_BOT_TOKEN": strings.TrimSpace(a.Token)}

	cfg := config.Config{
		Version: "1",
		Log:     config.LogConfig{Level: "info", Format: "text"},
		Discord: config.DiscordConfig{
			Token:             "${DISCORD_BOT_TOKEN}",
			ManagedCategories: cats,
			AdoptExisting:     a.AdoptExisting,
		},
		Store:    config.StoreConfig{Driver: a.Driver, OnCorrupt: config.OnCorruptAbort},
		Schedule: config.ScheduleConfig{Sweep: "* * * * *", MinDays: minDays, MaxDays: maxDays},
	}

	if id := strings.TrimSpace(a.GraveyardChannel); id != "" {
		cfg.Archive.Sinks = append(cfg.Archive.Sinks, config.SinkDiscord)
		cfg.Archive.GraveyardChannel = id
	}
	if a.ArchiveFiles {
		cfg.Archive.Sinks = append(cfg.Archive.Sinks, config.SinkFile)
		cfg.Archive.Dir = "archives"
		cfg.Archive.Compress = true
	}

	switch a.Driver {
	case config.DriverPostgres:
		env["CHANRESET_POSTGRES_DSN"] = strings.TrimSpace(a.DSN)
		cfg.Store.DSN = "${CHANRESET_POSTGRES_DSN}"
	case config.DriverSQLite:
		cfg.Store.Path = "chanreset.db"
	default:
		cfg.Store.Path = "tasks.json"
	}

	if a.EnableAdminServer {
		cfg.Gateway.Bind = "127.0.0.1:8080"
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, nil, err
	}
	return out, env, nil
}

func parseIDs(s string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := optionalID(part); err != nil {
			return nil, err
		}
		ids = append(ids, part)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one category id is required")
	}
	return ids, nil
}

func optionalID(s string) error {
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return fmt.Errorf("%q is not a numeric id", s)
		}
	}
	return nil
}

func parseDays(minS, maxS string) (int, int, error) {
	var minDays, maxDays int
	if _, err := fmt.Sscan(minS, &minDays); err != nil || minDays < 1 {
		return 0, 0, fmt.Errorf("minimum days: %q is not a positive integer", minS)
	}
	if _, err := fmt.Sscan(maxS, &maxDays); err != nil || maxDays < minDays {
		return 0, 0, fmt.Errorf("maximum days: %q must be an integer of at least %d", maxS, minDays)
	}
	return minDays, maxDays, nil
}

func positiveInt(s string) error {
	var n int
	if _, err := fmt.Sscan(s, &n); err != nil || n < 1 {
		return fmt.Errorf("%q is not a positive integer", s)
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
