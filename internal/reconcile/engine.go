package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/bus/cartbus"
	"github.com/printforge/cartsync/internal/journal"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

const engineSource = "reconcile/engine"

// CartAPI is the slice of the storefront client the engine depends on.
type CartAPI interface {
	Cart(ctx context.Context) (*schema.CartSnapshot, error)
	CartMutator
}

// DetailsFetcher resolves editor pricing per project.
type DetailsFetcher interface {
	Details(ctx context.Context, projectID string) (*schema.ProjectDetails, error)
}

// EngineConfig tunes one reconciliation engine.
type EngineConfig struct {
	// FeeVariantID enables fee synchronization when non-empty.
	FeeVariantID string
	// Debounce is the settle window collapsing event bursts into one pass.
	Debounce time.Duration
	// FetchWorkers bounds concurrent project detail fetches within a pass.
	FetchWorkers int
}

func (c EngineConfig) normalize() EngineConfig {
	if c.Debounce <= 0 {
		c.Debounce = 75 * time.Millisecond
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 4
	}
	return c
}

// Engine runs the reconciliation pipeline: snapshot the cart, classify
// lines, fetch editor details, compute deltas, synchronize fee lines, and
// clean orphans. It subscribes to the cart bus and owns the only goroutine
// that mutates the cart, so passes never interleave.
type Engine struct {
	cfg        EngineConfig
	cart       CartAPI
	details    DetailsFetcher
	bus        cartbus.Bus
	store      journal.Store
	classifier *Classifier
	syncer     *Synchronizer
	stats      *observability.ReconcileMetrics

	kick     chan struct{}
	debounce *Debouncer
}

// NewEngine wires a reconciliation engine. details may be nil when no editor
// proxy is configured: the engine then only performs orphan cleanup. store
// may be nil to disable journaling.
func NewEngine(cfg EngineConfig, cart CartAPI, details DetailsFetcher, bus cartbus.Bus, store journal.Store) (*Engine, error) {
	if cart == nil {
		return nil, errs.New(engineSource, errs.CodeInvalid, errs.WithMessage("cart API required"))
	}
	if bus == nil {
		return nil, errs.New(engineSource, errs.CodeInvalid, errs.WithMessage("cart bus required"))
	}
	cfg = cfg.normalize()

	engine := &Engine{
		cfg:        cfg,
		cart:       cart,
		details:    details,
		bus:        bus,
		store:      store,
		classifier: NewClassifier(cfg.FeeVariantID),
		syncer:     NewSynchronizer(cart, cfg.FeeVariantID),
		stats:      observability.NewReconcileMetrics(),
		kick:       make(chan struct{}, 1),
	}
	engine.debounce = NewDebouncer(cfg.Debounce, engine.requestPass)

	if !engine.syncer.Enabled() {
		observability.Log().Warn("fee synchronization disabled: no fee variant configured")
	}
	if details == nil {
		observability.Log().Warn("project details disabled: no editor proxy configured")
	}
	return engine, nil
}

// Stats returns the accumulated reconciliation counters.
func (e *Engine) Stats() observability.ReconcileSnapshot {
	return e.stats.Snapshot()
}

func (e *Engine) requestPass() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run subscribes to cart events and reconciles until ctx terminates.
func (e *Engine) Run(ctx context.Context) error {
	changedID, changedCh, err := e.bus.Subscribe(ctx, schema.EventCartChanged)
	if err != nil {
		return err
	}
	defer e.bus.Unsubscribe(changedID)

	refreshID, refreshCh, err := e.bus.Subscribe(ctx, schema.EventCartRefresh)
	if err != nil {
		return err
	}
	defer e.bus.Unsubscribe(refreshID)
	defer e.debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changedCh:
			if !ok {
				return nil
			}
			e.debounce.Trigger()
		case _, ok := <-refreshCh:
			if !ok {
				return nil
			}
			e.debounce.Trigger()
		case <-e.kick:
			e.RunPass(ctx)
		}
	}
}

// RunPass executes one full reconciliation pass. Failures are isolated per
// project; the returned error reports only pass-fatal conditions (the cart
// snapshot itself being unavailable).
func (e *Engine) RunPass(ctx context.Context) error {
	passID := uuid.NewString()
	started := time.Now()
	log := observability.Log()
	metrics := observability.Telemetry()

	snapshot, err := e.cart.Cart(ctx)
	if err != nil {
		log.Warn("cart snapshot unavailable, pass skipped",
			observability.String("pass_id", passID), observability.Err(err))
		metrics.IncCounter("cartsync_pass_failures_total", 1, nil)
		return err
	}
	e.stats.RecordPass()

	e.classifier.Prune(snapshot)

	projects, feeLines := e.scan(snapshot)

	mutated := false
	if e.syncer.Enabled() && e.details != nil {
		fetched := e.prefetch(ctx, projects)
		for _, projectID := range projects {
			result := fetched[projectID]
			if result.err != nil {
				log.Warn("project details unavailable, project skipped",
					observability.String("pass_id", passID),
					observability.String("project_id", projectID),
					observability.Err(result.err))
				metrics.IncCounter("cartsync_project_failures_total", 1, nil)
				e.stats.RecordProjectFailure()
				continue
			}
			if e.syncProject(ctx, passID, snapshot, result.details, feeLines[projectID]) {
				mutated = true
			}
		}
	}

	removed := 0
	if e.syncer.Enabled() {
		removed = CleanOrphans(ctx, snapshot, e.classifier, e.cart, func(projectID string, key schema.LineKey) {
			e.record(ctx, journal.Entry{
				PassID:    passID,
				ProjectID: projectID,
				Action:    journal.ActionRemove,
				LineKey:   string(key),
			})
			metrics.IncCounter("cartsync_mutations_total", 1, map[string]string{"action": "remove"})
		})
		e.stats.RecordOrphansRemoved(removed)
	}

	if mutated || removed > 0 {
		// The snapshot is stale now. Publishing cart.changed schedules a
		// verification pass against a fresh snapshot.
		if err := e.bus.Publish(ctx, schema.NewCartEvent(schema.EventCartChanged, engineSource)); err != nil {
			log.Warn("post-mutation publish failed", observability.Err(err))
		}
	}

	metrics.IncCounter("cartsync_passes_total", 1, nil)
	metrics.ObserveHistogram("cartsync_pass_duration_seconds", time.Since(started).Seconds(), nil)
	log.Debug("reconciliation pass complete",
		observability.String("pass_id", passID),
		observability.Int64("lines", int64(len(snapshot.Lines))),
		observability.Int64("projects", int64(len(projects))),
		observability.Int64("orphans_removed", int64(removed)))
	return nil
}

// scan classifies every line, returning the distinct main-line project ids
// in cart order and the first fee line found per project.
func (e *Engine) scan(snapshot *schema.CartSnapshot) ([]string, map[string]*schema.CartLine) {
	var projects []string
	seen := make(map[string]struct{})
	feeLines := make(map[string]*schema.CartLine)

	for i := range snapshot.Lines {
		line := &snapshot.Lines[i]
		cls := e.classifier.Classify(*line)
		if cls.ProjectID == "" {
			continue
		}
		if cls.Fee {
			if _, ok := feeLines[cls.ProjectID]; !ok {
				feeLines[cls.ProjectID] = line
			}
			continue
		}
		if _, ok := seen[cls.ProjectID]; !ok {
			seen[cls.ProjectID] = struct{}{}
			projects = append(projects, cls.ProjectID)
		}
	}
	return projects, feeLines
}

type detailsResult struct {
	details *schema.ProjectDetails
	err     error
}

// prefetch resolves editor details for all projects with bounded
// concurrency. The fetcher deduplicates and caches underneath, so repeat
// passes cost nothing.
func (e *Engine) prefetch(ctx context.Context, projects []string) map[string]detailsResult {
	results := make(map[string]detailsResult, len(projects))
	if len(projects) == 0 {
		return results
	}

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(e.cfg.FetchWorkers)
	for _, projectID := range projects {
		projectID := projectID
		workers.Go(func() {
			details, err := e.details.Details(ctx, projectID)
			mu.Lock()
			results[projectID] = detailsResult{details: details, err: err}
			mu.Unlock()
		})
	}
	workers.Wait()
	return results
}

func (e *Engine) syncProject(ctx context.Context, passID string, snapshot *schema.CartSnapshot, details *schema.ProjectDetails, feeLine *schema.CartLine) bool {
	log := observability.Log()
	metrics := observability.Telemetry()

	rec, err := ComputeDelta(snapshot, e.classifier, details)
	if err != nil {
		log.Warn("delta computation skipped",
			observability.String("pass_id", passID),
			observability.String("project_id", details.ProjectID),
			observability.Err(err))
		metrics.IncCounter("cartsync_project_failures_total", 1, nil)
		e.stats.RecordProjectFailure()
		return false
	}

	result, err := e.syncer.Sync(ctx, rec, feeLine)
	if err != nil {
		log.Warn("fee synchronization failed, retried on next pass",
			observability.String("pass_id", passID),
			observability.String("project_id", rec.ProjectID),
			observability.String("action", string(result.Action)),
			observability.Err(err))
		metrics.IncCounter("cartsync_project_failures_total", 1, nil)
		e.stats.RecordProjectFailure()
		return false
	}
	if !result.Mutated {
		return false
	}

	metrics.IncCounter("cartsync_mutations_total", 1, map[string]string{"action": string(result.Action)})
	e.stats.RecordMutation(string(result.Action))
	e.record(ctx, journal.Entry{
		PassID:      passID,
		ProjectID:   rec.ProjectID,
		Action:      journal.Action(result.Action),
		LineKey:     string(result.LineKey),
		Quantity:    result.Quantity,
		Delta:       rec.Delta,
		EditorTotal: rec.EditorTotal,
		ShopifyLine: rec.ShopifyLine,
	})
	return true
}

// record journals a mutation. Journal failures never affect the pass.
func (e *Engine) record(ctx context.Context, entry journal.Entry) {
	if e.store == nil {
		return
	}
	if err := e.store.Record(ctx, entry); err != nil {
		observability.Log().Warn("journal write failed", observability.Err(err))
	}
}
