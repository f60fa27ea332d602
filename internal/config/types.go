package config

// Config is the daemon settings document (reportd.yaml / reportd.json).
//
// It is distinct from the report config document (monitored files +
// schedules) which lives in the store configured under Storage.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Runner    RunnerConfig    `json:"runner"`
	Report    ReportConfig    `json:"report"`

	// Delivery is optional; nil disables delivery entirely.
	Delivery *DeliveryConfig `json:"delivery,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the backend holding the report config document.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./config/config.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the tick loop.
//
// Tick is a Go duration string; it defaults to "15s". Matching is done at
// minute precision, so any tick shorter than a minute is safe.
type SchedulerConfig struct {
	Autostart bool   `json:"autostart"`
	Tick      string `json:"tick,omitempty"`
	Timezone  string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Taipei"
}

// RunnerConfig controls how report batches are executed.
type RunnerConfig struct {
	// Executable is the binary spawned per monitored group. Empty means the
	// running reportd binary itself (os.Executable).
	Executable string `json:"executable,omitempty"`
	// Timeout bounds a single group's child process. "0s" disables it.
	Timeout string `json:"timeout,omitempty"`
	// LogRatePerSec caps how many child output lines per second are relayed
	// into the daemon log. Lines over the cap are still kept in the tail.
	LogRatePerSec int `json:"log_rate_per_sec,omitempty"`
	// OutputTail is how many trailing output lines are kept per group.
	OutputTail int `json:"output_tail,omitempty"`
}

// ReportConfig controls the report pipeline (reportd generate).
type ReportConfig struct {
	Template      string   `json:"template"`
	OutputDir     string   `json:"output_dir"`
	Converter     string   `json:"converter"`
	ConverterArgs []string `json:"converter_args,omitempty"`
	TopN          int      `json:"top_n,omitempty"`
}

type DeliveryConfig struct {
	Telegram TelegramDelivery `json:"telegram"`
}

// TelegramDelivery sends each produced PDF to a chat.
type TelegramDelivery struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	Caption  string `json:"caption,omitempty"`
	// Timeout is a Go duration string for a single upload.
	Timeout string `json:"timeout,omitempty"`
}

const (
	DefaultStorePath = "./config/config.json"
	DefaultTick      = "15s"
	DefaultTemplate  = "./templates/pdf_templates.md"
	DefaultOutputDir = "./output"
	DefaultConverter = "./weasyprint"
	DefaultTopN      = 6
)

// Default returns the settings used when no settings file exists.
func Default() *Config {
	cfg := &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Autostart: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStorePath
	}
	if cfg.Scheduler.Tick == "" {
		cfg.Scheduler.Tick = DefaultTick
	}
	if cfg.Runner.Timeout == "" {
		cfg.Runner.Timeout = "10m"
	}
	if cfg.Runner.LogRatePerSec <= 0 {
		cfg.Runner.LogRatePerSec = 20
	}
	if cfg.Runner.OutputTail <= 0 {
		cfg.Runner.OutputTail = 50
	}
	if cfg.Report.Template == "" {
		cfg.Report.Template = DefaultTemplate
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = DefaultOutputDir
	}
	if cfg.Report.Converter == "" {
		cfg.Report.Converter = DefaultConverter
	}
	if cfg.Report.TopN <= 0 {
		cfg.Report.TopN = DefaultTopN
	}
}
