// Package config handles YAML configuration loading, environment variable
// expansion, defaults, and validation for chanreset.
package config

// Store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Archive sink names.
const (
	SinkDiscord = "discord"
	SinkFile    = "file"
)

// Corrupt-store policies.
const (
	OnCorruptAbort = "abort"
	OnCorruptReset = "reset"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version" validate:"required"`

	Log      LogConfig      `yaml:"log"`
	Discord  DiscordConfig  `yaml:"discord"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Store    StoreConfig    `yaml:"store"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// LogConfig selects the root slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DiscordConfig holds the bot credentials and the managed set definition.
type DiscordConfig struct {
	Token      string `yaml:"token" validate:"required"`
	APIURL     string `yaml:"api_url" validate:"omitempty,url"`
	GatewayURL string `yaml:"gateway_url" validate:"omitempty,url"`

	// ManagedCategories lists the category ids whose child channels are
	// reset on a schedule.
	ManagedCategories []string `yaml:"managed_categories" validate:"min=1,dive,numeric"`

	// AdoptExisting registers channels already present in managed
	// categories when the bot connects.
	AdoptExisting bool `yaml:"adopt_existing"`
}

// ArchiveConfig controls what happens to a channel's history before reset.
type ArchiveConfig struct {
	// Sinks lists archive destinations. When omitted it defaults to discord
	// if a graveyard channel is set; an explicit empty list disables
	// archiving.
	Sinks            []string `yaml:"sinks" validate:"dive,oneof=discord file"`
	GraveyardChannel string   `yaml:"graveyard_channel" validate:"omitempty,numeric"`
	Dir              string   `yaml:"dir"`
	Compress         bool     `yaml:"compress"`
	MaxMessages      int      `yaml:"max_messages" validate:"gte=0"`
	BatchSize        int      `yaml:"batch_size" validate:"gte=0"`
}

// HasSink reports whether name is among the configured sinks.
func (a ArchiveConfig) HasSink(name string) bool {
	for _, s := range a.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Driver    string `yaml:"driver" validate:"oneof=file sqlite postgres"`
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	OnCorrupt string `yaml:"on_corrupt" validate:"oneof=abort reset"`
}

// ScheduleConfig holds the sweep cadence and the reset interval bounds.
type ScheduleConfig struct {
	Sweep   string `yaml:"sweep"`
	MinDays int    `yaml:"min_days" validate:"gte=1"`
	MaxDays int    `yaml:"max_days" validate:"gtefield=MinDays"`
}

// GatewayConfig configures the HTTP admin surface. An empty Bind disables it.
type GatewayConfig struct {
	Bind        string `yaml:"bind" validate:"omitempty,hostname_port"`
	BearerToken string `yaml:"bearer_token"`
}

// TracingConfig configures OpenTelemetry export. With an empty Endpoint
// spans are written to stdout.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Discord.APIURL == "" {
		c.Discord.APIURL = "https://discord.com/api/v10"
	}
	if c.Archive.Sinks == nil && c.Archive.GraveyardChannel != "" {
		c.Archive.Sinks = []string{SinkDiscord}
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "archives"
	}
	if c.Archive.MaxMessages == 0 {
		c.Archive.MaxMessages = 10000
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = 500
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case DriverFile:
			c.Store.Path = "tasks.json"
		case DriverSQLite:
			c.Store.Path = "chanreset.db"
		}
	}
	if c.Store.OnCorrupt == "" {
		c.Store.OnCorrupt = OnCorruptAbort
	}
	if c.Schedule.Sweep == "" {
		c.Schedule.Sweep = "* * * * *"
	}
	if c.Schedule.MinDays == 0 {
		c.Schedule.MinDays = 1
	}
	if c.Schedule.MaxDays == 0 {
		c.Schedule.MaxDays = 14
	}
}
