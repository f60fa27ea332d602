package config

import (
	"reflect"
	"strings"

	logx "reportd/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// structured attrs safe for logging (never the telegram token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.autostart", newCfg.Scheduler.Autostart),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Runner != newCfg.Runner {
		changed = append(changed, "runner")
		attrs = append(attrs,
			logx.String("runner.timeout", newCfg.Runner.Timeout),
			logx.Int("runner.log_rate_per_sec", newCfg.Runner.LogRatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Report, newCfg.Report) {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.String("report.template", newCfg.Report.Template),
			logx.String("report.output_dir", newCfg.Report.OutputDir),
			logx.Int("report.top_n", newCfg.Report.TopN),
		)
	}

	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		enabled := newCfg.Delivery != nil && newCfg.Delivery.Telegram.Enabled
		attrs = append(attrs, logx.Bool("delivery.telegram_enabled", enabled))
		if enabled {
			attrs = append(attrs,
				logx.Int64("delivery.telegram_chat", newCfg.Delivery.Telegram.ChatID),
				logx.Bool("delivery.telegram_token_set", strings.TrimSpace(newCfg.Delivery.Telegram.Token) != ""),
			)
		}
	}

	return changed, attrs
}

// LogConfig converts the logging section into the logx representation.
func (c LoggingConfig) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}
