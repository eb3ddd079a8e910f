package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/bot"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/config"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/eventbus"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/monitor"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/notifier"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/observability/pprof"
	rtsup "github.com/ryanwhyr/uniqlo-sale-notifier/internal/runtime/supervisor"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	kit "github.com/ryanwhyr/uniqlo-sale-notifier/internal/transport"
	telegram "github.com/ryanwhyr/uniqlo-sale-notifier/internal/transport/telegram/adapter"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	api     *catalog.Client

	notif *notifier.Service
	mon   *monitor.Service
	disp  *bot.Dispatcher
	prof  *pprof.Service

	updates   chan kit.Update
	startedAt time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	ad, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping.
	// logx.New() calls Apply() immediately; bootstrap with Telegram logging
	// disabled, set the target, then Apply() the final config so a missing
	// target doesn't produce a false-positive warning.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if strings.TrimSpace(cfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Storage is not optional: products, observation history and the
	// notification ledger all live here.
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("storage is required")
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	ccfg, err := mapCatalogConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := catalog.New(ccfg, log.With(logx.String("comp", "catalog")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, store)

	mcfg, err := mapMonitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(mcfg.Timezone); tz != "" {
		if l, lerr := time.LoadLocation(tz); lerr == nil {
			loc = l
		}
	}
	det := engine.NewDetector(store, log.With(logx.String("comp", "detector")))
	pol := engine.NewPolicy(store, loc, log.With(logx.String("comp", "throttle")))
	mon := monitor.New(mcfg, store, api, det, pol, notif, bus, log.With(logx.String("comp", "monitor")))

	disp := bot.NewDispatcher(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	h := &bot.Handlers{
		Store:     store,
		Catalog:   api,
		Monitor:   mon,
		StartedAt: time.Now(),
		Log:       log.With(logx.String("comp", "commands")),
	}
	cmds, cbs := h.Registry()
	disp.SetRegistry(cmds, cbs)

	pcfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	prof := pprof.New(pcfg, log)

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		api:       api,
		notif:     notif,
		mon:       mon,
		disp:      disp,
		prof:      prof,
		updates:   make(chan kit.Update, 256),
		startedAt: time.Now(),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapCatalogConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMonitorConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPprofConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if err := a.mon.Start(a.sup.Context()); err != nil {
		return err
	}

	if pcfg, err := mapPprofConfig(a.cfgm.Get()); err == nil {
		a.prof.Reconfigure(a.sup.Context(), pcfg)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.disp.DispatchLoop(c, a.updates)
	})

	// Debug visibility for internal events.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot-reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				for _, s := range sections {
					if s == "storage" || s == "catalog" {
						a.log.Warn("storage/catalog config changed; restart required for changes to take effect")
						break
					}
				}

				// Update log target first so Apply() doesn't warn.
				if strings.TrimSpace(newCfg.Telegram.GroupLog) != "" {
					if chatID, err := strconv.ParseInt(strings.TrimSpace(newCfg.Telegram.GroupLog), 10, 64); err == nil {
						a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
					}
				} else {
					a.logs.SetTelegramTarget(0, 0)
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
					Telegram: logx.TelegramConfig{
						Enabled:    newCfg.Logging.Telegram.Enabled,
						ThreadID:   newCfg.Logging.Telegram.ThreadID,
						MinLevel:   newCfg.Logging.Telegram.MinLevel,
						RatePerSec: newCfg.Logging.Telegram.RatePerSec,
					},
				})

				a.disp.SetOwners(newCfg.Telegram.OwnerUserIDs)

				// Notifier updates (live).
				prevNotifEnabled := a.notif.Enabled()
				ncfg, err := mapNotifierConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid notifier config; keeping previous", logx.Any("err", err))
				} else {
					a.notif.Apply(ncfg)
					if prevNotifEnabled && !ncfg.Enabled {
						a.log.Info("notifier disabled via config")
						stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
						a.notif.Stop(stopCtx)
						cancel()
					} else if !prevNotifEnabled && ncfg.Enabled {
						a.log.Info("notifier enabled via config")
						a.notif.Start(c)
					}
				}

				// pprof updates (live; addr/token changes restart the server).
				pcfg, err := mapPprofConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid debug.pprof config; keeping previous", logx.Any("err", err))
				} else {
					a.prof.Reconfigure(c, pcfg)
				}

				// Monitor updates (live; schedule changes restart the cron).
				mcfg, err := mapMonitorConfig(newCfg)
				if err != nil {
					a.log.Warn("invalid monitor config; keeping previous", logx.Any("err", err))
				} else if err := a.mon.Apply(c, mcfg); err != nil {
					a.log.Warn("monitor config apply failed", logx.Any("err", err))
				}

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("pprof", 1*time.Second, func(c context.Context) error { a.prof.Stop(c); return nil })
	step("monitor", 3*time.Second, func(c context.Context) error { return a.mon.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
