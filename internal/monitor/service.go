package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/eventbus"
	rtsup "github.com/ryanwhyr/uniqlo-sale-notifier/internal/runtime/supervisor"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

// Service runs the periodic sale checks: fetch variants per tracked
// store, detect sale transitions, consult the throttle policy and hand
// approved alerts to the publisher.
type Service struct {
	store    storage.Store
	api      CatalogSource
	detector *engine.Detector
	policy   *engine.Policy
	pub      Publisher
	bus      eventbus.Bus
	log      logx.Logger

	mu  sync.Mutex
	cfg Config
	loc *time.Location

	cron    *cron.Cron
	sup     *rtsup.Supervisor
	running bool

	// runGate ensures a single pass at a time (scheduled or manual).
	runGate chan struct{}

	// locks serializes detect+decide+write per product.
	locks keyedLocks

	snapMu sync.Mutex
	snap   Snapshot
}

func New(cfg Config, store storage.Store, api CatalogSource, det *engine.Detector, pol *engine.Policy, pub Publisher, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			log.Warn("invalid monitor timezone; using local", logx.String("timezone", tz), logx.Err(err))
		}
	}
	s := &Service{
		store:    store,
		api:      api,
		detector: det,
		policy:   pol,
		pub:      pub,
		bus:      bus,
		log:      log,
		cfg:      withDefaults(cfg),
		loc:      loc,
		runGate:  make(chan struct{}, 1),
	}
	s.runGate <- struct{}{}
	return s
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = "30m"
	}
	if len(cfg.DefaultStoreIDs) == 0 {
		cfg.DefaultStoreIDs = []string{DefaultStoreID}
	}
	if cfg.Pace <= 0 {
		cfg.Pace = 2 * time.Second
	}
	if cfg.ProductTimeout <= 0 {
		cfg.ProductTimeout = 60 * time.Second
	}
	return cfg
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("monitor disabled")
		return nil
	}

	spec, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec.CronSpec(), func() { s.runPass("schedule") }); err != nil {
		return fmt.Errorf("monitor: schedule: %w", err)
	}
	if s.cfg.Retention > 0 {
		if _, err := c.AddFunc("@daily", func() { s.runRetention() }); err != nil {
			return fmt.Errorf("monitor: retention: %w", err)
		}
	}
	c.Start()
	s.cron = c
	s.running = true

	s.snapMu.Lock()
	s.snap.Enabled = true
	s.snap.Schedule = s.cfg.Schedule
	s.snapMu.Unlock()

	s.log.Info("monitor started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("default_stores", len(s.cfg.DefaultStoreIDs)),
		logx.Duration("pace", s.cfg.Pace),
	)
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	sup := s.sup
	s.cron = nil
	s.sup = nil
	s.running = false
	s.mu.Unlock()

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if sup != nil {
		sup.Cancel()
		return sup.Wait(ctx)
	}
	return nil
}

// Apply swaps config at runtime. Schedule changes restart the cron.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	restart := s.running && (old.Schedule != cfg.Schedule || old.Retention != cfg.Retention || !cfg.Enabled) ||
		!s.running && cfg.Enabled
	s.mu.Unlock()

	if !restart {
		return nil
	}
	if err := s.Stop(ctx); err != nil {
		s.log.Warn("monitor stop during apply", logx.Err(err))
	}
	if !cfg.Enabled {
		s.log.Info("monitor disabled by config")
		s.snapMu.Lock()
		s.snap.Enabled = false
		s.snapMu.Unlock()
		return nil
	}
	return s.Start(context.Background())
}

// Snapshot returns the last pass summary for /status.
func (s *Service) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// CheckAll runs a full pass now (manual trigger). It shares the run
// gate with the scheduler: a second concurrent call fails fast.
func (s *Service) CheckAll(ctx context.Context) ([]CheckResult, error) {
	select {
	case <-s.runGate:
	default:
		return nil, errors.New("monitor: check already running")
	}
	defer func() { s.runGate <- struct{}{} }()
	return s.pass(ctx, "manual")
}

func (s *Service) runPass(trigger string) {
	select {
	case <-s.runGate:
	default:
		s.log.Warn("previous pass still running; skipping tick")
		return
	}
	defer func() { s.runGate <- struct{}{} }()

	ctx := context.Background()
	if sup := s.supervisor(); sup != nil {
		ctx = sup.Context()
	}
	if _, err := s.pass(ctx, trigger); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("monitor pass failed", logx.Err(err))
	}
}

func (s *Service) supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) pass(ctx context.Context, trigger string) ([]CheckResult, error) {
	start := time.Now()
	s.snapMu.Lock()
	s.snap.Running = true
	s.snapMu.Unlock()
	defer func() {
		s.snapMu.Lock()
		s.snap.Running = false
		s.snapMu.Unlock()
	}()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: list products: %w", err)
	}

	cfg := s.config()
	results := make([]CheckResult, 0, len(products))
	notified, failed := 0, 0

	for i, p := range products {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(cfg.Pace):
			}
		}

		pctx, cancel := context.WithTimeout(ctx, cfg.ProductTimeout)
		res := s.CheckProduct(pctx, p)
		cancel()

		results = append(results, res)
		switch res.Outcome {
		case OutcomeNotified:
			notified++
		case OutcomeNoData, OutcomeError:
			failed++
		}
	}

	dur := time.Since(start)
	s.snapMu.Lock()
	s.snap.LastRunAt = start
	s.snap.LastDuration = dur
	s.snap.LastChecked = len(results)
	s.snap.LastNotified = notified
	s.snap.LastFailed = failed
	s.snapMu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "monitor.tick", Data: map[string]any{
			"trigger":  trigger,
			"checked":  len(results),
			"notified": notified,
			"failed":   failed,
			"took_ms":  dur.Milliseconds(),
		}})
	}
	s.log.Info("monitor pass done",
		logx.String("trigger", trigger),
		logx.Int("checked", len(results)),
		logx.Int("notified", notified),
		logx.Int("failed", failed),
		logx.Duration("took", dur),
	)
	return results, nil
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// CheckProduct checks one product across its subscriber's stores.
//
// Failure isolation: one failing store is skipped; the check aborts
// with no state mutation only when EVERY store call fails.
func (s *Service) CheckProduct(ctx context.Context, p storage.Product) CheckResult {
	res := CheckResult{Product: p, Outcome: OutcomeError}

	catalogID := strings.TrimSpace(p.CatalogID)
	if catalogID == "" {
		id, ok := catalog.ExtractProductID(p.URL)
		if !ok {
			res.Outcome = OutcomeNoData
			res.Err = fmt.Errorf("no catalog id for product %d", p.ID)
			return res
		}
		catalogID = id
	}

	storeIDs := s.storesFor(ctx, p.ChatID)
	available := make([]catalog.Variant, 0, 8)
	fetchedAny := false

	for _, storeID := range storeIDs {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.StoresChecked++

		variants, err := s.api.ProductVariants(ctx, catalogID, storeID)
		if err != nil {
			res.StoresFailed++
			s.log.Warn("store fetch failed",
				logx.Int64("product_id", p.ID),
				logx.String("store_id", storeID),
				logx.Err(err),
			)
			continue
		}
		fetchedAny = true

		storeName := s.api.StoreName(ctx, storeID)
		for _, v := range variants {
			if !v.Available() {
				continue
			}
			v.StoreID = storeID
			v.StoreName = storeName

			// The generic answer can be stale for physical stores;
			// prefer the store-selection endpoint when it is conclusive.
			status, found, serr := s.api.StoreStock(ctx, v.ID, storeID)
			if serr != nil || !found {
				available = append(available, v)
				continue
			}
			if status == catalog.StockOutOfStock {
				continue
			}
			v.StockStatus = status
			available = append(available, v)
		}
	}

	if !fetchedAny {
		res.Outcome = OutcomeNoData
		res.Err = fmt.Errorf("all %d store fetches failed", len(storeIDs))
		return res
	}

	// Detect + decide + write under the product lock so batches and
	// ledger updates never interleave for the same product.
	unlock := s.locks.lock(p.ID)
	defer unlock()

	state, err := s.detector.Detect(ctx, p.ID, time.Now(), available)
	if err != nil {
		res.Err = err
		return res
	}
	res.State = state

	if state.SaleEnded {
		if err := s.policy.OnSaleEnded(ctx, p.ID); err != nil {
			s.log.Error("clearing ledger failed", logx.Int64("product_id", p.ID), logx.Err(err))
		}
	}

	if len(available) == 0 {
		res.Outcome = OutcomeOutOfStock
		if online, err := s.api.OnlineAvailability(ctx, catalogID); err == nil {
			res.Online = &online
		} else {
			s.log.Debug("online availability check failed", logx.Int64("product_id", p.ID), logx.Err(err))
		}
		return res
	}

	if !state.HasSale {
		if state.SaleEnded {
			res.Outcome = OutcomeSaleEnded
		} else {
			res.Outcome = OutcomeNoSale
		}
		return res
	}

	ok, reason, err := s.policy.ShouldNotify(ctx, p.ID, state.LowestPromo, state.IsNewSale)
	if err != nil {
		res.Err = err
		return res
	}
	res.Reason = reason
	if !ok {
		res.Outcome = OutcomeSuppressed
		return res
	}

	// Dispatch is best-effort: the ledger write below stands even when
	// delivery fails, so a flaky channel cannot cause repeat alerts.
	if err := s.pub.PublishSale(ctx, p, state); err != nil {
		s.log.Error("sale alert dispatch failed", logx.Int64("product_id", p.ID), logx.Err(err))
	}
	if err := s.policy.RecordNotification(ctx, p.ID, state.LowestPromo); err != nil {
		res.Err = err
		return res
	}

	res.Outcome = OutcomeNotified
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "monitor.notified", Data: map[string]any{
			"product_id": p.ID,
			"chat_id":    p.ChatID,
			"price":      state.LowestPromo,
			"reason":     string(reason),
		}})
	}
	return res
}

func (s *Service) storesFor(ctx context.Context, chatID int64) []string {
	tracked, err := s.store.ListTrackedStores(ctx, chatID)
	if err != nil {
		s.log.Warn("listing tracked stores failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	if len(tracked) == 0 {
		return s.config().DefaultStoreIDs
	}
	ids := make([]string, 0, len(tracked))
	for _, t := range tracked {
		ids = append(ids, t.StoreID)
	}
	return ids
}

func (s *Service) runRetention() {
	cfg := s.config()
	if cfg.Retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cut := time.Now().Add(-cfg.Retention)
	n, err := s.store.PruneObservations(ctx, cut)
	if err != nil {
		s.log.Error("observation prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("observation batches pruned", logx.Int64("batches", n), logx.Time("older_than", cut))
	}
}

// keyedLocks hands out one mutex per product id.
type keyedLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (k *keyedLocks) lock(id int64) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = map[int64]*sync.Mutex{}
	}
	l := k.m[id]
	if l == nil {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
