package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TenantData provides read access to per-tenant configuration.
type TenantData interface {
	// SystemPrompt returns the tenant's current system prompt. ok is false
	// when the tenant has no prompt configured.
	SystemPrompt(ctx context.Context, tenantID int64) (prompt string, ok bool, err error)
}

// Completer produces a reply for a user message under a system prompt.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Fixed user-visible replies. Message-level failures are converted into
// these instead of escalating; they must never terminate the receive loop.
const (
	ReplyNotConfigured = "Sorry, this bot has no system prompt configured yet."
	ReplyDegraded      = "Sorry, something went wrong while generating a reply."
)

// DefaultCompletionTimeout bounds a single completion call so a stop
// request is never stuck behind a hung outbound request.
const DefaultCompletionTimeout = 60 * time.Second

// WorkerConfig describes one worker to start.
type WorkerConfig struct {
	TenantID  int64
	Token     string
	Connector Connector
	Data      TenantData
	Completer Completer

	// CompletionTimeout bounds each completion call. Zero means
	// DefaultCompletionTimeout.
	CompletionTimeout time.Duration

	// Exits receives the worker when its session closes on its own, so the
	// supervisor can drop the registry entry before the next cycle. May be
	// nil. Sends never block; a dropped report is harmless because the
	// supervisor also checks worker liveness every cycle.
	Exits chan<- *Worker
}

// Worker maintains one tenant's live platform session and processes its
// inbound messages sequentially, in receipt order.
type Worker struct {
	tenantID  int64
	token     string
	session   Session
	cfg       WorkerConfig
	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// StartWorker connects to the platform with the tenant's token and begins
// the receive loop in its own goroutine. It returns as soon as the session
// is live. A connection error returns ErrConnectionFailed; the worker does
// not retry on its own.
func StartWorker(cfg WorkerConfig) (*Worker, error) {
	session, err := cfg.Connector.Connect(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("tenant %d: %w: %v", cfg.TenantID, ErrConnectionFailed, err)
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		tenantID:  cfg.TenantID,
		token:     cfg.Token,
		session:   session,
		cfg:       cfg,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go w.receiveLoop(ctx)
	return w, nil
}

// TenantID returns the tenant this worker serves.
func (w *Worker) TenantID() int64 { return w.tenantID }

// alive reports whether the receive loop is still running.
func (w *Worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Token returns the token the live session was established with.
func (w *Worker) Token() string { return w.token }

func (w *Worker) receiveLoop(ctx context.Context) {
	defer close(w.done)
	defer w.session.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.session.Updates():
			if !ok {
				// The platform closed the session underneath us. Report the
				// death so the next reconciliation cycle restarts us if the
				// tenant is still desired.
				slog.Warn("fleet: worker session closed", "tenant", w.tenantID)
				if w.cfg.Exits != nil {
					select {
					case w.cfg.Exits <- w:
					default:
					}
				}
				return
			}
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one inbound message. Failures become fixed
// replies or log lines; they never terminate the receive loop.
func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	if msg.Text == "" {
		return
	}

	// The prompt may change between messages, so it is fetched fresh every
	// time rather than cached at connect.
	prompt, ok, err := w.cfg.Data.SystemPrompt(ctx, w.tenantID)
	if err != nil {
		slog.Error("fleet: system prompt lookup failed", "tenant", w.tenantID, "error", err)
		w.reply(ctx, msg, ReplyDegraded)
		return
	}
	if !ok {
		w.reply(ctx, msg, ReplyNotConfigured)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CompletionTimeout)
	answer, err := w.cfg.Completer.Complete(callCtx, msg.Text, prompt)
	cancel()
	if err != nil {
		slog.Error("fleet: completion failed", "tenant", w.tenantID, "error", err)
		w.reply(ctx, msg, ReplyDegraded)
		return
	}

	w.reply(ctx, msg, answer)
}

func (w *Worker) reply(ctx context.Context, msg Message, text string) {
	if err := w.session.Reply(ctx, msg, text); err != nil {
		slog.Warn("fleet: reply failed", "tenant", w.tenantID, "error", err)
	}
}

// Stop signals the receive loop to exit and waits up to timeout for it to
// finish, returning ErrShutdownTimeout on expiry. Either way the worker is
// finished from the caller's point of view.
func (w *Worker) Stop(timeout time.Duration) error {
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("tenant %d: %w", w.tenantID, ErrShutdownTimeout)
	}
}
