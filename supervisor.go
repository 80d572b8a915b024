package fleet

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Tenant is one desired fleet member: a tenant that should have a running
// worker connected with the given token.
type Tenant struct {
	ID    int64
	Token string
}

// SnapshotSource reports the full desired tenant set, read once per
// reconciliation cycle. Tokens are non-empty.
type SnapshotSource interface {
	ListActiveTenants(ctx context.Context) ([]Tenant, error)
}

const (
	// DefaultInterval is the pause between reconciliation cycle starts.
	DefaultInterval = 10 * time.Second

	// DefaultStopTimeout bounds how long a cycle waits for one worker to
	// confirm shutdown.
	DefaultStopTimeout = 5 * time.Second
)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Source    SnapshotSource
	Connector Connector
	Data      TenantData
	Completer Completer

	// StopTimeout bounds each worker shutdown. Zero means
	// DefaultStopTimeout.
	StopTimeout time.Duration

	// CompletionTimeout is handed to every worker. Zero means
	// DefaultCompletionTimeout.
	CompletionTimeout time.Duration
}

// Supervisor keeps the set of running workers in sync with the snapshot
// source. The registry is mutated only by the reconciliation loop; the one
// invariant is a single worker per tenant, connected with the desired
// token. Other goroutines read through Snapshot.
type Supervisor struct {
	cfg   SupervisorConfig
	exits chan *Worker

	// mu guards registry for Snapshot readers. All mutation happens on the
	// reconciliation loop.
	mu       sync.Mutex
	registry map[int64]*workerRecord
}

type workerRecord struct {
	token  string
	worker *Worker
}

// NewSupervisor creates a Supervisor. Run starts the reconciliation loop.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		cfg:      cfg,
		exits:    make(chan *Worker, 64),
		registry: make(map[int64]*workerRecord),
	}
}

// Run drives reconciliation until ctx is cancelled, then stops every
// worker. Cycles are strictly sequential: the interval is measured between
// cycle starts, and a cycle that overruns it delays the next cycle rather
// than overlapping it.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("fleet: supervisor started", "interval", interval)
	for {
		s.Reconcile(ctx)
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// Reconcile runs one cycle and returns the tenants started and stopped,
// for observability. After it returns, the registry holds exactly the
// desired tenants whose workers could be started, each with the desired
// token.
func (s *Supervisor) Reconcile(ctx context.Context) (started, stopped []int64) {
	// Drop workers that reported their own death since the last cycle, so
	// they count as absent below and get restarted if still desired.
	s.drainExits()

	desired, err := s.cfg.Source.ListActiveTenants(ctx)
	if err != nil {
		slog.Error("fleet: snapshot read failed, skipping cycle", "error", err)
		return nil, nil
	}
	want := make(map[int64]string, len(desired))
	for _, t := range desired {
		want[t.ID] = t.Token
	}

	// Stop workers whose tenant is gone or whose token changed. A token
	// change forces stop-then-start so the live session always matches the
	// desired token.
	for id, rec := range s.entries() {
		token, ok := want[id]
		if ok && token == rec.token {
			if rec.worker.alive() {
				continue
			}
			// The receive loop ended on its own, whether or not its exit
			// report made it through. Drop the entry so the start phase
			// below brings the tenant back.
			slog.Info("fleet: worker found dead", "tenant", id)
			s.remove(id)
			continue
		}
		slog.Info("fleet: stopping worker", "tenant", id)
		if err := rec.worker.Stop(s.cfg.StopTimeout); err != nil {
			slog.Warn("fleet: worker stop timed out", "tenant", id, "error", err)
		}
		s.remove(id)
		stopped = append(stopped, id)
	}

	// Start workers for desired tenants without one, including those just
	// stopped for a token change.
	for id, token := range want {
		if s.lookup(id) != nil {
			continue
		}
		slog.Info("fleet: starting worker", "tenant", id)
		w, err := StartWorker(WorkerConfig{
			TenantID:          id,
			Token:             token,
			Connector:         s.cfg.Connector,
			Data:              s.cfg.Data,
			Completer:         s.cfg.Completer,
			CompletionTimeout: s.cfg.CompletionTimeout,
			Exits:             s.exits,
		})
		if err != nil {
			// No registry entry; retried next cycle with no extra backoff.
			slog.Error("fleet: worker start failed", "tenant", id, "error", err)
			continue
		}
		s.put(id, &workerRecord{token: token, worker: w})
		started = append(started, id)
	}

	return started, stopped
}

// drainExits removes registry entries for workers that terminated on their
// own. The worker identity check keeps a stale report from evicting a
// replacement started in a later cycle.
func (s *Supervisor) drainExits() {
	for {
		select {
		case w := <-s.exits:
			s.mu.Lock()
			if rec, ok := s.registry[w.tenantID]; ok && rec.worker == w {
				delete(s.registry, w.tenantID)
				slog.Info("fleet: worker exited, removed from registry", "tenant", w.tenantID)
			}
			s.mu.Unlock()
		default:
			return
		}
	}
}

// Shutdown stops every running worker. Stops run concurrently, each
// bounded by the stop timeout, so total shutdown time is bounded too.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	records := make([]*workerRecord, 0, len(s.registry))
	for _, rec := range s.registry {
		records = append(records, rec)
	}
	s.registry = make(map[int64]*workerRecord)
	s.mu.Unlock()

	var g errgroup.Group
	for _, rec := range records {
		g.Go(func() error {
			if err := rec.worker.Stop(s.cfg.StopTimeout); err != nil {
				slog.Warn("fleet: worker stop timed out during shutdown",
					"tenant", rec.worker.tenantID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	slog.Info("fleet: supervisor stopped", "workers", len(records))
}

// WorkerStatus describes one running worker.
type WorkerStatus struct {
	TenantID  int64     `json:"tenant_id"`
	StartedAt time.Time `json:"started_at"`
}

// Snapshot returns a copy of the current registry state, ordered by tenant
// ID. This is the only sanctioned cross-goroutine read of the registry.
func (s *Supervisor) Snapshot() []WorkerStatus {
	s.mu.Lock()
	statuses := make([]WorkerStatus, 0, len(s.registry))
	for id, rec := range s.registry {
		statuses = append(statuses, WorkerStatus{
			TenantID:  id,
			StartedAt: rec.worker.startedAt,
		})
	}
	s.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].TenantID < statuses[j].TenantID })
	return statuses
}

func (s *Supervisor) entries() map[int64]*workerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]*workerRecord, len(s.registry))
	for id, rec := range s.registry {
		out[id] = rec
	}
	return out
}

func (s *Supervisor) lookup(id int64) *workerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry[id]
}

func (s *Supervisor) put(id int64, rec *workerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[id] = rec
}

func (s *Supervisor) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, id)
}
