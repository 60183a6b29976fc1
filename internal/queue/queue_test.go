package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/velvetfox/velvetfox/internal/schema"
)

// fakeProvider scripts completion behavior per test.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, msgs schema.Messages, opts schema.ChatOptions) (string, error)
}

func (f *fakeProvider) Chat(ctx context.Context, msgs schema.Messages, opts schema.ChatOptions) (string, error) {
	f.mu.Lock()
	if msgs.Len() > 0 {
		f.calls = append(f.calls, msgs.Messages[msgs.Len()-1].Content)
	}
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, msgs, opts)
	}
	return "ok", nil
}

func (f *fakeProvider) DefaultModel() string { return "test-model" }

func (f *fakeProvider) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func userRequest(kind Kind, chatID, content string) *Request {
	var msgs schema.Messages
	msgs.AddUser(content)
	return &Request{Kind: kind, ChatID: chatID, Messages: msgs, Opts: schema.NewChatOptions("test-model", 256, 0.7)}
}

func TestSubmit_Saturation(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	q := New(provider, Options{Capacity: 1, Workers: 1, MaxRetries: 1, Timeout: 5 * time.Second})
	startQueue(t, q)

	first, err := q.Submit(userRequest(KindChatReply, "chat-1", "hello"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// The only slot is taken; further submissions bounce without enqueueing.
	if _, err := q.Submit(userRequest(KindChatReply, "chat-2", "hi")); !errors.Is(err, ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}

	close(release)
	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	// Slot freed; the queue accepts again.
	if _, err := q.Submit(userRequest(KindChatReply, "chat-2", "hi again")); err != nil {
		t.Fatalf("submit after drain: %v", err)
	}
}

func TestFIFO_PerChat(t *testing.T) {
	provider := &fakeProvider{fn: func(_ context.Context, msgs schema.Messages, _ schema.ChatOptions) (string, error) {
		return "reply to " + msgs.Messages[msgs.Len()-1].Content, nil
	}}
	q := New(provider, Options{Capacity: 16, Workers: 1, MaxRetries: 1, Timeout: time.Second})
	startQueue(t, q)

	const n = 5
	pendings := make([]*Pending, 0, n)
	for i := 0; i < n; i++ {
		p, err := q.Submit(userRequest(KindSummary, "chat-1", fmt.Sprintf("msg-%d", i)))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		pendings = append(pendings, p)
	}
	for i, p := range pendings {
		if _, err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	calls := provider.callLog()
	if len(calls) != n {
		t.Fatalf("expected %d calls, got %d", n, len(calls))
	}
	for i, got := range calls {
		want := fmt.Sprintf("msg-%d", i)
		if got != want {
			t.Errorf("call %d executed out of order: got %q, want %q", i, got, want)
		}
	}
}

func TestRetry_ExhaustionFails(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	provider := &fakeProvider{fn: func(_ context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return "", errors.New("connection refused")
	}}
	q := New(provider, Options{Capacity: 4, Workers: 1, MaxRetries: 3, Timeout: time.Second, Backoff: time.Millisecond})
	startQueue(t, q)

	p, err := q.Submit(userRequest(KindChatReply, "chat-1", "hello"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	provider := &fakeProvider{fn: func(_ context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return "", errors.New("timeout")
		}
		return "recovered", nil
	}}
	q := New(provider, Options{Capacity: 4, Workers: 1, MaxRetries: 3, Timeout: time.Second, Backoff: time.Millisecond})
	startQueue(t, q)

	p, err := q.Submit(userRequest(KindChatReply, "chat-1", "hello"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	text, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if text != "recovered" {
		t.Errorf("expected recovered, got %q", text)
	}
}

func TestFencing_BumpDiscardsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return "late answer", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	q := New(provider, Options{Capacity: 4, Workers: 1, MaxRetries: 1, Timeout: 5 * time.Second})
	startQueue(t, q)

	p, err := q.Submit(userRequest(KindChatReply, "chat-1", "hello"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	q.Bump("chat-1") // /cancel arrives while the call is in flight
	close(release)

	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrStaleResult) {
		t.Fatalf("expected ErrStaleResult, got %v", err)
	}
}

func TestFencing_NewSubmitSupersedesOld(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-release:
				return "old", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "new", nil
	}}
	// Two workers would break per-chat FIFO here, but sharding keeps both
	// requests on the same lane.
	q := New(provider, Options{Capacity: 4, Workers: 2, MaxRetries: 1, Timeout: 5 * time.Second})
	startQueue(t, q)

	old, err := q.Submit(userRequest(KindChatReply, "chat-1", "first"))
	if err != nil {
		t.Fatalf("submit old: %v", err)
	}
	<-started

	fresh, err := q.Submit(userRequest(KindChatReply, "chat-1", "second"))
	if err != nil {
		t.Fatalf("submit new: %v", err)
	}
	close(release)

	if _, err := old.Wait(context.Background()); !errors.Is(err, ErrStaleResult) {
		t.Fatalf("expected old request stale, got %v", err)
	}
	text, err := fresh.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait new: %v", err)
	}
	if text != "new" {
		t.Errorf("expected new, got %q", text)
	}
}

func TestFencing_SummaryUnaffectedByBump(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return "summary text", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	q := New(provider, Options{Capacity: 4, Workers: 1, MaxRetries: 1, Timeout: 5 * time.Second})
	startQueue(t, q)

	p, err := q.Submit(userRequest(KindSummary, "chat-1", "consolidate"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	q.Bump("chat-1")
	close(release)

	text, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("summary should survive a bump: %v", err)
	}
	if text != "summary text" {
		t.Errorf("got %q", text)
	}
}

func TestShutdown_ResolvesEverySubmission(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	q := New(provider, Options{Capacity: 8, Workers: 1, MaxRetries: 1, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()

	// The single worker sticks on the first request; the rest sit queued
	// behind it when shutdown begins.
	pendings := make([]*Pending, 0, 4)
	for i := 0; i < 4; i++ {
		p, err := q.Submit(userRequest(KindSummary, "chat-1", fmt.Sprintf("msg-%d", i)))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		pendings = append(pendings, p)
	}

	cancel()
	<-done

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	for i, p := range pendings {
		if _, err := p.Wait(waitCtx); err == nil {
			t.Fatalf("submission %d resolved without error after shutdown", i)
		}
	}

	if _, err := q.Submit(userRequest(KindSummary, "chat-1", "late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
	if got := q.Len(); got != 0 {
		t.Errorf("expected no pending requests after drain, got %d", got)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{fn: func(ctx context.Context, _ schema.Messages, _ schema.ChatOptions) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	q := New(provider, Options{Capacity: 4, Workers: 1, MaxRetries: 1, Timeout: 5 * time.Second})
	startQueue(t, q)
	defer close(release)

	p, err := q.Submit(userRequest(KindChatReply, "chat-1", "hello"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
