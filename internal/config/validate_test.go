package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Version: "1",
		Discord: DiscordConfig{
			Token:             "tok",
			ManagedCategories: []string{"111", "222"},
		},
		Archive: ArchiveConfig{
			Sinks:            []string{SinkDiscord, SinkFile},
			GraveyardChannel: "333",
		},
		Gateway: GatewayConfig{Bind: "127.0.0.1:8080"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing version",
			mutate: func(c *Config) { c.Version = "" },
			want:   "version",
		},
		{
			name:   "unsupported version",
			mutate: func(c *Config) { c.Version = "2" },
			want:   "unsupported version",
		},
		{
			name:   "missing token",
			mutate: func(c *Config) { c.Discord.Token = "" },
			want:   "discord.token",
		},
		{
			name:   "no managed categories",
			mutate: func(c *Config) { c.Discord.ManagedCategories = nil },
			want:   "discord.managed_categories",
		},
		{
			name:   "non numeric category",
			mutate: func(c *Config) { c.Discord.ManagedCategories = []string{"general"} },
			want:   "discord.managed_categories[0]",
		},
		{
			name:   "unknown sink",
			mutate: func(c *Config) { c.Archive.Sinks = []string{"s3"} },
			want:   "archive.sinks[0]",
		},
		{
			name:   "discord sink without graveyard",
			mutate: func(c *Config) { c.Archive.GraveyardChannel = "" },
			want:   "graveyard_channel",
		},
		{
			name:   "unknown driver",
			mutate: func(c *Config) { c.Store.Driver = "redis" },
			want:   "store.driver",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Store.Driver = DriverPostgres },
			want:   "store.dsn",
		},
		{
			name:   "bad on_corrupt",
			mutate: func(c *Config) { c.Store.OnCorrupt = "ignore" },
			want:   "store.on_corrupt",
		},
		{
			name:   "max below min",
			mutate: func(c *Config) { c.Schedule.MinDays, c.Schedule.MaxDays = 7, 3 },
			want:   "schedule.max_days",
		},
		{
			name:   "bad sweep expression",
			mutate: func(c *Config) { c.Schedule.Sweep = "every minute" },
			want:   "schedule.sweep",
		},
		{
			name:   "bad bind",
			mutate: func(c *Config) { c.Gateway.Bind = "localhost" },
			want:   "gateway.bind",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			want:   "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Discord.Token = ""
	cfg.Store.Driver = "redis"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"discord.token", "store.driver"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
