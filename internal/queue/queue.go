// Package queue decouples submission of LLM-bound work from its execution.
//
// All calls to the completion endpoint go through here. A bounded number of
// workers drain per-shard FIFO lanes; requests are sharded by chat id, so a
// given chat's requests are strictly ordered relative to each other while
// different chats execute concurrently. Monotonic per-chat fencing tokens
// make /regenerate and /cancel safe against races with in-flight calls.
package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velvetfox/velvetfox/internal/schema"
)

// Kind identifies the purpose of a generation request.
type Kind int

const (
	KindChatReply Kind = iota
	KindPersona
	KindScene
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindChatReply:
		return "chat-reply"
	case KindPersona:
		return "persona-generation"
	case KindScene:
		return "scene-generation"
	case KindSummary:
		return "summarization"
	default:
		return "unknown"
	}
}

var (
	// ErrQueueSaturated is returned by Submit when the bounded capacity is
	// exceeded. Callers ask the user to retry shortly; nothing was enqueued.
	ErrQueueSaturated = errors.New("request queue saturated")

	// ErrGenerationFailed resolves a pending request after retries against
	// the completion endpoint are exhausted.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrStaleResult resolves a request that was superseded by a newer
	// fencing token. Never surfaced to users; callers discard it silently.
	ErrStaleResult = errors.New("stale result discarded")

	// ErrClosed is returned by Submit after shutdown has begun.
	ErrClosed = errors.New("request queue closed")
)

// Request is one unit of LLM-bound work.
type Request struct {
	Kind     Kind
	ChatID   string
	Messages schema.Messages
	Opts     schema.ChatOptions
}

// fenced reports whether results of this kind are subject to token fencing.
// Only chat replies race with /regenerate and /cancel; summarization is
// guarded by the store watermark instead, and persona/scene generation is
// confirmed explicitly by the user.
func (r *Request) fenced() bool { return r.Kind == KindChatReply }

// Result is the terminal outcome of a request.
type Result struct {
	Text string
	Err  error
}

// Pending is the caller's handle on a submitted request.
type Pending struct {
	ch chan Result
}

// Wait blocks until the request resolves or ctx is done.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-p.ch:
		return res.Text, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type submission struct {
	req   *Request
	token uint64
	out   chan Result
}

// Options bound the queue and its retry policy.
type Options struct {
	Capacity   int           // max queued requests across all chats
	Workers    int           // shard count; one worker goroutine per shard
	MaxRetries int           // attempts per request
	Timeout    time.Duration // per-attempt deadline
	Backoff    time.Duration // initial retry backoff, doubles per attempt
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = 32
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	return o
}

// Queue is the single serialized execution lane in front of the completion
// endpoint. Create one at startup and run it under the process errgroup.
type Queue struct {
	provider schema.LLMProvider
	opts     Options
	shards   []chan submission

	mu      sync.Mutex
	pending int
	closed  bool
	fences  map[string]uint64
}

// New creates a Queue over the given provider. Run must be called before
// submissions resolve.
func New(provider schema.LLMProvider, opts Options) *Queue {
	opts = opts.withDefaults()
	shards := make([]chan submission, opts.Workers)
	for i := range shards {
		// Each shard can hold the full capacity so enqueueing never blocks:
		// the global pending count is the real bound.
		shards[i] = make(chan submission, opts.Capacity)
	}
	return &Queue{
		provider: provider,
		opts:     opts,
		shards:   shards,
		fences:   make(map[string]uint64),
	}
}

// Submit enqueues req and returns a handle to await its result.
// Chat-reply requests are stamped with a fresh fencing token, superseding
// any earlier in-flight reply for the same chat.
func (q *Queue) Submit(req *Request) (*Pending, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if q.pending >= q.opts.Capacity {
		q.mu.Unlock()
		return nil, ErrQueueSaturated
	}
	q.pending++
	var token uint64
	if req.fenced() {
		q.fences[req.ChatID]++
		token = q.fences[req.ChatID]
	}

	// The send stays inside the critical section: shards are buffered to the
	// full capacity and pending is bounded by it, so this never blocks, and
	// once closed is set no submission can slip past drain.
	sub := submission{req: req, token: token, out: make(chan Result, 1)}
	q.shards[q.shardFor(req.ChatID)] <- sub
	q.mu.Unlock()

	return &Pending{ch: sub.out}, nil
}

// Bump invalidates any in-flight or queued chat-reply for the chat without
// submitting new work. Used by /cancel and /regenerate.
func (q *Queue) Bump(chatID string) {
	q.mu.Lock()
	q.fences[chatID]++
	q.mu.Unlock()
}

// Len returns the number of requests accepted but not yet resolved.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Run drives the worker pool until ctx is cancelled. Queued requests that
// never execute are resolved with ErrClosed so no caller blocks forever.
func (q *Queue) Run(ctx context.Context) error {
	slog.Info("request queue started", "workers", q.opts.Workers, "capacity", q.opts.Capacity)

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range q.shards {
		shard := shard
		g.Go(func() error { return q.workerLoop(gctx, shard) })
	}

	<-gctx.Done()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	_ = g.Wait()
	q.drain()
	slog.Info("request queue stopped")
	return ctx.Err()
}

func (q *Queue) workerLoop(ctx context.Context, shard <-chan submission) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub := <-shard:
			q.execute(ctx, sub)
		}
	}
}

// execute runs one request against the provider, honouring fencing, the
// per-attempt timeout, and the retry budget.
func (q *Queue) execute(ctx context.Context, sub submission) {
	defer func() {
		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
	}()

	// Superseded before execution started: drop without calling out.
	if sub.req.fenced() && !q.tokenCurrent(sub.req.ChatID, sub.token) {
		sub.out <- Result{Err: ErrStaleResult}
		return
	}

	text, err := q.callWithRetry(ctx, sub.req)

	// Superseded while the call was in flight: the result is discarded on
	// delivery, never written anywhere.
	if sub.req.fenced() && !q.tokenCurrent(sub.req.ChatID, sub.token) {
		slog.Debug("discarding superseded result", "chat", sub.req.ChatID, "kind", sub.req.Kind)
		sub.out <- Result{Err: ErrStaleResult}
		return
	}

	sub.out <- Result{Text: text, Err: err}
}

func (q *Queue) callWithRetry(ctx context.Context, req *Request) (string, error) {
	backoff := q.opts.Backoff
	var lastErr error

	for attempt := 1; attempt <= q.opts.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
		text, err := q.provider.Chat(attemptCtx, req.Messages, req.Opts)
		cancel()

		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
		}

		slog.Warn("completion attempt failed",
			"chat", req.ChatID, "kind", req.Kind, "attempt", attempt, "err", err)

		if attempt < q.opts.MaxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
			}
			backoff *= 2
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, q.opts.MaxRetries, lastErr)
}

func (q *Queue) tokenCurrent(chatID string, token uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fences[chatID] == token
}

func (q *Queue) shardFor(chatID string) int {
	h := fnv.New32a()
	h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

// drain resolves everything still queued after shutdown so waiters unblock.
// Holding the lock for the whole pass pairs with the locked send in Submit:
// by the time drain runs, closed is set and the shards can only shrink.
func (q *Queue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, shard := range q.shards {
		for drained := false; !drained; {
			select {
			case sub := <-shard:
				q.pending--
				sub.out <- Result{Err: ErrClosed}
			default:
				drained = true
			}
		}
	}
}
