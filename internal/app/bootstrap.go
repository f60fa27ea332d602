package app

import (
	"context"
	"strings"
	"time"

	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/internal/delivery"
	"reportd/internal/report"
	"reportd/internal/storage"
	"reportd/internal/task/runner"
	"reportd/internal/task/scheduler"
	logx "reportd/pkg/logx"
)

// Location resolves scheduler.timezone; empty means the host zone.
func Location(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

// OpenStore opens the configured backend and loads the report config
// document. The caller owns the returned storage.Store and must Close it.
func OpenStore(ctx context.Context, cfg *config.Config, log logx.Logger) (*configstore.Store, storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	loc, err := Location(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	cs := configstore.New(st, loc, log.With(logx.String("comp", "configstore")))
	if err := cs.Load(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return cs, st, nil
}

func mapRunnerOptions(cfg *config.Config) (runner.Options, error) {
	timeout, err := config.ParseDurationField("runner.timeout", cfg.Runner.Timeout)
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		Timeout:       timeout,
		LogRatePerSec: cfg.Runner.LogRatePerSec,
		OutputTail:    cfg.Runner.OutputTail,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, scheduler.DefaultTick)
	if err != nil {
		return scheduler.Config{}, err
	}
	loc, err := Location(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Tick: tick, Location: loc}, nil
}

// mapDelivery builds the upload sender; a nil Sender means delivery is off.
func mapDelivery(cfg *config.Config) (delivery.Sender, delivery.Options, error) {
	if cfg.Delivery == nil || !cfg.Delivery.Telegram.Enabled {
		return nil, delivery.Options{}, nil
	}
	tg := cfg.Delivery.Telegram
	timeout, err := config.ParseDurationOrDefault("delivery.telegram.timeout", tg.Timeout, time.Minute)
	if err != nil {
		return nil, delivery.Options{}, err
	}
	sender, err := delivery.NewTelegram(delivery.TelegramConfig{
		Token:    tg.Token,
		ChatID:   tg.ChatID,
		ThreadID: tg.ThreadID,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, delivery.Options{}, err
	}
	return sender, delivery.Options{Caption: tg.Caption, Retries: 2}, nil
}

// ReportOptions maps the report section for report.Generate.
func ReportOptions(cfg *config.Config, log logx.Logger) report.Options {
	return report.Options{
		Template:  cfg.Report.Template,
		OutputDir: cfg.Report.OutputDir,
		TopN:      cfg.Report.TopN,
		Converter: report.ExecConverter{Path: cfg.Report.Converter, Args: cfg.Report.ConverterArgs},
		Log:       log,
	}
}
