package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const minimalYAML = `
version: "1"
discord:
  token: ${CHANRESET_TEST_TOKEN}
  managed_categories: ["111"]
`

func TestParse_AppliesDefaults(t *testing.T) {
	t.Setenv("CHANRESET_TEST_TOKEN", "tok")

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Discord.Token != "tok" {
		t.Errorf("Discord.Token = %q, want tok", cfg.Discord.Token)
	}
	if cfg.Discord.APIURL != "https://discord.com/api/v10" {
		t.Errorf("Discord.APIURL = %q", cfg.Discord.APIURL)
	}
	if cfg.Store.Driver != DriverFile || cfg.Store.Path != "tasks.json" {
		t.Errorf("Store = %+v, want file driver on tasks.json", cfg.Store)
	}
	if cfg.Store.OnCorrupt != OnCorruptAbort {
		t.Errorf("Store.OnCorrupt = %q, want abort", cfg.Store.OnCorrupt)
	}
	if cfg.Schedule.Sweep != "* * * * *" || cfg.Schedule.MinDays != 1 || cfg.Schedule.MaxDays != 14 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Archive.MaxMessages != 10000 || cfg.Archive.BatchSize != 500 {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParse_ArchiveSinkDefault(t *testing.T) {
	t.Setenv("CHANRESET_TEST_TOKEN", "tok")

	tests := []struct {
		name    string
		archive string
		want    []string
	}{
		{name: "no archive section", archive: "", want: nil},
		{name: "graveyard implies discord", archive: "archive:\n  graveyard_channel: \"222\"\n", want: []string{SinkDiscord}},
		{name: "explicit sinks kept", archive: "archive:\n  graveyard_channel: \"222\"\n  sinks: [file]\n", want: []string{SinkFile}},
		{name: "explicit empty disables", archive: "archive:\n  graveyard_channel: \"222\"\n  sinks: []\n", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalYAML + tt.archive))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if (cfg.Archive.Sinks == nil) != (tt.want == nil) || !slices.Equal(cfg.Archive.Sinks, tt.want) {
				t.Errorf("Archive.Sinks = %#v, want %#v", cfg.Archive.Sinks, tt.want)
			}
		})
	}
}

func TestParse_SQLiteDefaultPath(t *testing.T) {
	t.Setenv("CHANRESET_TEST_TOKEN", "tok")

	cfg, err := Parse([]byte(minimalYAML + "store:\n  driver: sqlite\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Store.Path != "chanreset.db" {
		t.Errorf("Store.Path = %q, want chanreset.db", cfg.Store.Path)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Setenv("CHANRESET_TEST_TOKEN", "tok")

	_, err := Parse([]byte(minimalYAML + "bogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHANRESET_SET", "value")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "set", input: "a: ${CHANRESET_SET}", want: "a: value"},
		{name: "default", input: "a: ${CHANRESET_UNSET:-fallback}", want: "a: fallback"},
		{name: "empty default", input: "a: ${CHANRESET_UNSET:-}", want: "a: "},
		{name: "set wins over default", input: "a: ${CHANRESET_SET:-fallback}", want: "a: value"},
		{name: "unresolved", input: "a: ${CHANRESET_UNSET}", wantErr: "CHANRESET_UNSET"},
		{name: "no variables", input: "a: plain", want: "a: plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expandEnv() error = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnv() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expandEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Setenv("CHANRESET_TEST_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("Discord.Token = %q, want from-env", cfg.Discord.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
