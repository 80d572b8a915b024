package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Fake Platform Infrastructure
// =============================================================================

// fakeSession is an in-memory platform session. Tests feed inbound messages
// into updates and observe outbound text on replies.
type fakeSession struct {
	updates chan Message
	replies chan string
	closed  chan struct{}
	once    sync.Once

	mu          sync.Mutex
	failReplies int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		updates: make(chan Message, 8),
		replies: make(chan string, 8),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSession) Updates() <-chan Message { return s.updates }

func (s *fakeSession) Reply(ctx context.Context, msg Message, text string) error {
	s.mu.Lock()
	if s.failReplies > 0 {
		s.failReplies--
		s.mu.Unlock()
		return errors.New("send failed")
	}
	s.mu.Unlock()
	s.replies <- text
	return nil
}

// failNextReply makes the next Reply call fail once.
func (s *fakeSession) failNextReply() {
	s.mu.Lock()
	s.failReplies++
	s.mu.Unlock()
}

func (s *fakeSession) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeConnector hands out fakeSessions and records every token it was asked
// to connect with. Tokens listed in fail refuse to connect.
type fakeConnector struct {
	mu       sync.Mutex
	tokens   []string
	sessions map[string]*fakeSession
	fail     map[string]error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{sessions: make(map[string]*fakeSession)}
}

func (c *fakeConnector) Connect(token string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[token]; err != nil {
		return nil, err
	}
	s := newFakeSession()
	c.tokens = append(c.tokens, token)
	c.sessions[token] = s
	return s, nil
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

func (c *fakeConnector) session(token string) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[token]
}

func (c *fakeConnector) setFail(token string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]error)
	}
	if err == nil {
		delete(c.fail, token)
	} else {
		c.fail[token] = err
	}
}

// fakeData serves a mutable per-test system prompt.
type fakeData struct {
	mu     sync.Mutex
	prompt string
	ok     bool
	err    error
}

func (d *fakeData) SystemPrompt(ctx context.Context, tenantID int64) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prompt, d.ok, d.err
}

func (d *fakeData) set(prompt string, ok bool) {
	d.mu.Lock()
	d.prompt = prompt
	d.ok = ok
	d.mu.Unlock()
}

type completionCall struct {
	prompt string
	system string
}

// fakeCompleter returns a canned answer and records every call. When block
// is set, Complete parks on it without honoring the context, simulating a
// hung outbound request.
type fakeCompleter struct {
	mu     sync.Mutex
	calls  []completionCall
	answer string
	err    error

	block chan struct{}
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completionCall{prompt: prompt, system: systemPrompt})
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeCompleter) call(i int) completionCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[i]
}

func waitReply(t *testing.T, s *fakeSession) string {
	t.Helper()
	select {
	case text := <-s.replies:
		return text
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for reply")
		return ""
	}
}

func startTestWorker(t *testing.T, data *fakeData, completer *fakeCompleter) (*Worker, *fakeSession) {
	t.Helper()
	conn := newFakeConnector()
	w, err := StartWorker(WorkerConfig{
		TenantID:  1,
		Token:     "tok",
		Connector: conn,
		Data:      data,
		Completer: completer,
	})
	if err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}
	t.Cleanup(func() { w.Stop(time.Second) })
	return w, conn.session("tok")
}

// =============================================================================
// WORKER MESSAGE HANDLING TESTS
// =============================================================================

func TestWorkerHandlesMessage(t *testing.T) {
	t.Run("replies with completion", func(t *testing.T) {
		data := &fakeData{prompt: "You are a support bot.", ok: true}
		completer := &fakeCompleter{answer: "Here is your answer."}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "How do I reset my password?"}

		if got := waitReply(t, session); got != "Here is your answer." {
			t.Errorf("Reply = %q, want completion answer", got)
		}
		if completer.callCount() != 1 {
			t.Fatalf("Completion calls = %d, want 1", completer.callCount())
		}
		call := completer.call(0)
		if call.prompt != "How do I reset my password?" {
			t.Errorf("Completion prompt = %q, want the message text", call.prompt)
		}
		if call.system != "You are a support bot." {
			t.Errorf("Completion system prompt = %q, want tenant prompt", call.system)
		}
	})

	t.Run("no prompt configured", func(t *testing.T) {
		data := &fakeData{ok: false}
		completer := &fakeCompleter{answer: "should not be used"}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "hello"}

		if got := waitReply(t, session); got != ReplyNotConfigured {
			t.Errorf("Reply = %q, want %q", got, ReplyNotConfigured)
		}
		if completer.callCount() != 0 {
			t.Errorf("Completion calls = %d, want 0 when prompt missing", completer.callCount())
		}
	})

	t.Run("prompt lookup failure degrades", func(t *testing.T) {
		data := &fakeData{err: errors.New("database unavailable")}
		completer := &fakeCompleter{answer: "should not be used"}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "hello"}

		if got := waitReply(t, session); got != ReplyDegraded {
			t.Errorf("Reply = %q, want %q", got, ReplyDegraded)
		}
		if completer.callCount() != 0 {
			t.Errorf("Completion calls = %d, want 0 on lookup failure", completer.callCount())
		}
	})

	t.Run("completion failure degrades", func(t *testing.T) {
		data := &fakeData{prompt: "You are helpful.", ok: true}
		completer := &fakeCompleter{err: errors.New("upstream 500")}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "hello"}

		if got := waitReply(t, session); got != ReplyDegraded {
			t.Errorf("Reply = %q, want %q", got, ReplyDegraded)
		}
	})

	t.Run("ignores non-text updates", func(t *testing.T) {
		data := &fakeData{prompt: "You are helpful.", ok: true}
		completer := &fakeCompleter{answer: "answered"}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1} // sticker, photo, join
		session.updates <- Message{ChatID: 7, MessageID: 2, Text: "real question"}

		if got := waitReply(t, session); got != "answered" {
			t.Errorf("Reply = %q, want the text message answered", got)
		}
		if completer.callCount() != 1 {
			t.Errorf("Completion calls = %d, want 1 (non-text skipped)", completer.callCount())
		}
	})

	t.Run("prompt fetched fresh per message", func(t *testing.T) {
		data := &fakeData{prompt: "v1", ok: true}
		completer := &fakeCompleter{answer: "ok"}
		_, session := startTestWorker(t, data, completer)

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "first"}
		waitReply(t, session)

		data.set("v2", true)
		session.updates <- Message{ChatID: 7, MessageID: 2, Text: "second"}
		waitReply(t, session)

		if completer.callCount() != 2 {
			t.Fatalf("Completion calls = %d, want 2", completer.callCount())
		}
		if got := completer.call(1).system; got != "v2" {
			t.Errorf("Second system prompt = %q, want %q", got, "v2")
		}
	})

	t.Run("reply failure does not kill the loop", func(t *testing.T) {
		data := &fakeData{prompt: "You are helpful.", ok: true}
		completer := &fakeCompleter{answer: "ok"}
		conn := newFakeConnector()
		w, err := StartWorker(WorkerConfig{
			TenantID:  1,
			Token:     "tok",
			Connector: conn,
			Data:      data,
			Completer: completer,
		})
		if err != nil {
			t.Fatalf("StartWorker failed: %v", err)
		}
		defer w.Stop(time.Second)
		session := conn.session("tok")

		session.failNextReply()
		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "first"}

		// The loop must survive the failed send and process the next message.
		session.updates <- Message{ChatID: 7, MessageID: 2, Text: "second"}

		waitReply(t, session)
		if completer.callCount() != 2 {
			t.Errorf("Completion calls = %d, want 2 after a failed reply", completer.callCount())
		}
	})
}

// =============================================================================
// WORKER LIFECYCLE TESTS
// =============================================================================

func TestStartWorkerConnectError(t *testing.T) {
	conn := newFakeConnector()
	conn.setFail("bad-token", errors.New("401 unauthorized"))

	w, err := StartWorker(WorkerConfig{
		TenantID:  1,
		Token:     "bad-token",
		Connector: conn,
		Data:      &fakeData{},
		Completer: &fakeCompleter{},
	})
	if w != nil {
		t.Error("Expected nil worker on connect failure")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Error = %v, want ErrConnectionFailed", err)
	}
}

func TestWorkerStop(t *testing.T) {
	t.Run("stops cleanly", func(t *testing.T) {
		conn := newFakeConnector()
		w, err := StartWorker(WorkerConfig{
			TenantID:  1,
			Token:     "tok",
			Connector: conn,
			Data:      &fakeData{},
			Completer: &fakeCompleter{},
		})
		if err != nil {
			t.Fatalf("StartWorker failed: %v", err)
		}

		if err := w.Stop(time.Second); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if !conn.session("tok").isClosed() {
			t.Error("Session was not closed on stop")
		}
	})

	t.Run("times out on a hung handler", func(t *testing.T) {
		release := make(chan struct{})
		data := &fakeData{prompt: "p", ok: true}
		completer := &fakeCompleter{answer: "ok", block: release}
		conn := newFakeConnector()
		w, err := StartWorker(WorkerConfig{
			TenantID:  1,
			Token:     "tok",
			Connector: conn,
			Data:      data,
			Completer: completer,
		})
		if err != nil {
			t.Fatalf("StartWorker failed: %v", err)
		}
		session := conn.session("tok")

		session.updates <- Message{ChatID: 7, MessageID: 1, Text: "hang"}
		time.Sleep(10 * time.Millisecond) // let the handler park in Complete

		err = w.Stop(20 * time.Millisecond)
		if !errors.Is(err, ErrShutdownTimeout) {
			t.Errorf("Error = %v, want ErrShutdownTimeout", err)
		}

		close(release)
		waitReply(t, session)
	})
}

func TestWorkerReportsOwnExit(t *testing.T) {
	exits := make(chan *Worker, 1)
	conn := newFakeConnector()
	w, err := StartWorker(WorkerConfig{
		TenantID:  1,
		Token:     "tok",
		Connector: conn,
		Data:      &fakeData{},
		Completer: &fakeCompleter{},
		Exits:     exits,
	})
	if err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}

	// The platform tears the session down underneath the worker.
	close(conn.session("tok").updates)

	select {
	case reported := <-exits:
		if reported != w {
			t.Error("Exit report carried the wrong worker")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for exit report")
	}
}
