package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/config"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/monitor"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/notifier"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/observability/pprof"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
)

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	if driver == "none" {
		return storage.Config{}, fmt.Errorf("storage.driver=none is not supported: the bot needs its database")
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./uniqlo-sale-notifier.db"
	}
	busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 1*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapCatalogConfig(cfg *config.Config) (catalog.Config, error) {
	cc := cfg.Catalog
	timeout, err := parseDurationOrDefault("catalog.request_timeout", cc.RequestTimeout, 15*time.Second)
	if err != nil {
		return catalog.Config{}, err
	}
	if cc.RatePerSec < 0 {
		return catalog.Config{}, fmt.Errorf("catalog.rate_per_sec must be >= 0")
	}
	return catalog.Config{
		BaseURL:        strings.TrimSpace(cc.BaseURL),
		RequestTimeout: timeout,
		RatePerSec:     cc.RatePerSec,
	}, nil
}

func mapMonitorConfig(cfg *config.Config) (monitor.Config, error) {
	mc := cfg.Monitor
	if mc.Enabled {
		if _, err := monitor.ParseSchedule(mc.Schedule); err != nil {
			return monitor.Config{}, fmt.Errorf("monitor.schedule: %w", err)
		}
	}
	pace, err := parseDurationOrDefault("monitor.pace", mc.Pace, 2*time.Second)
	if err != nil {
		return monitor.Config{}, err
	}
	productTimeout, err := parseDurationOrDefault("monitor.product_timeout", mc.ProductTimeout, 60*time.Second)
	if err != nil {
		return monitor.Config{}, err
	}
	retention, err := parseDurationOrDefault("monitor.retention", mc.Retention, 720*time.Hour)
	if err != nil {
		return monitor.Config{}, err
	}
	if tz := strings.TrimSpace(mc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return monitor.Config{}, fmt.Errorf("monitor.timezone: invalid %q: %w", tz, err)
		}
	}
	return monitor.Config{
		Enabled:         mc.Enabled,
		Schedule:        mc.Schedule,
		DefaultStoreIDs: append([]string(nil), mc.DefaultStoreIDs...),
		Pace:            pace,
		ProductTimeout:  productTimeout,
		Retention:       retention,
		Timezone:        mc.Timezone,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	// Omitted section means enabled with defaults.
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	nc := cfg.Notifier
	retryBase, err := parseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := parseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := parseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 1*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 || nc.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: counts must be >= 0")
	}
	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	pc := cfg.Debug.Pprof
	readTimeout, err := parseDurationOrDefault("debug.pprof.read_timeout", pc.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	writeTimeout, err := parseDurationOrDefault("debug.pprof.write_timeout", pc.WriteTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTimeout, err := parseDurationOrDefault("debug.pprof.idle_timeout", pc.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	if pc.MutexProfileFraction < 0 || pc.BlockProfileRate < 0 || pc.MemProfileRate < 0 {
		return pprof.Config{}, fmt.Errorf("debug.pprof: profile rates must be >= 0")
	}
	return pprof.Config{
		Enabled:              pc.Enabled,
		Addr:                 strings.TrimSpace(pc.Addr),
		Token:                pc.Token,
		AllowInsecure:        pc.AllowInsecure,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
		MemProfileRate:       pc.MemProfileRate,
	}, nil
}
