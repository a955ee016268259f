// Package feed implements the market-data fan-out primitive shared by live
// and simulated sources: one feed per (exchange, method, symbol, credentials)
// subscription, fanned out to any number of callbacks, with failure and retry
// bookkeeping handled by the registry sweep.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Run modes. Push delegates to the client's native streaming API; poll loops
// the client method and dispatches each result (the simulated exchange and
// other pushless sources use poll).
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// Callback receives one dispatched payload.
type Callback func(any)

// Client is the underlying market-data client a feed wraps.
type Client interface {
	// Call performs one poll-mode request for method+symbol.
	Call(ctx context.Context, method, symbol string) (any, error)
	// Watch runs the client's native push delivery, invoking fn per payload.
	// It blocks until the stream ends or ctx is canceled.
	Watch(ctx context.Context, method, symbol string, fn func(any)) error
}

// Key identifies one feed.
type Key struct {
	Exchange    string
	Method      string
	Symbol      string
	Credentials string // fingerprint, never the raw credentials
}

const backoffBase = 10 * time.Second

// Feed is one subscription fanned out to N callbacks. All state transitions
// are guarded by mu; dispatch happens outside the lock.
type Feed struct {
	key      Key
	mode     Mode
	client   Client
	limiter  *rate.Limiter // paces the poll loop, nil for push
	observer Callback      // registry observe-everything hook

	mu          sync.Mutex
	subs        map[int64]Callback
	order       []int64
	started     bool
	stopped     bool
	failed      bool
	exhausted   bool // max retries hit, sweep gives up
	retries     int
	lastCall    time.Time
	lastReceive time.Time
	cancel      context.CancelFunc
}

func newFeed(key Key, client Client, mode Mode, pollLimit rate.Limit, observer Callback) *Feed {
	f := &Feed{
		key:      key,
		mode:     mode,
		client:   client,
		observer: observer,
		subs:     make(map[int64]Callback),
	}
	if mode == ModePoll && pollLimit > 0 {
		f.limiter = rate.NewLimiter(pollLimit, 1)
	}
	return f
}

func (f *Feed) Key() Key { return f.key }

// subscribe registers the callback and starts the run loop on the first
// subscriber.
func (f *Feed) subscribe(ctx context.Context, id int64, cb Callback) {
	f.mu.Lock()
	f.subs[id] = cb
	f.order = append(f.order, id)
	start := !f.started
	if start {
		f.started = true
	}
	f.mu.Unlock()

	if start {
		f.runLoop(ctx)
	}
}

// unsubscribe removes only the callback. The loop itself is stopped and the
// feed garbage-collected by the registry sweep, not here.
func (f *Feed) unsubscribe(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *Feed) runLoop(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	switch f.mode {
	case ModePush:
		go f.runPush(runCtx)
	default:
		go f.runPoll(runCtx)
	}
}

func (f *Feed) runPush(ctx context.Context) {
	f.touchCall()
	err := f.client.Watch(ctx, f.key.Method, f.key.Symbol, f.dispatch)
	if err != nil && ctx.Err() == nil {
		log.Printf("feed %s %s %s: push stream error: %v", f.key.Exchange, f.key.Method, f.key.Symbol, err)
		f.markFailed()
	}
}

func (f *Feed) runPoll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return
			}
		}

		f.touchCall()
		res, err := f.client.Call(ctx, f.key.Method, f.key.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A failing iteration stops only this feed; the process and the
			// other feeds keep running. The sweep retries later.
			log.Printf("feed %s %s %s: poll error: %v", f.key.Exchange, f.key.Method, f.key.Symbol, err)
			f.markFailed()
			return
		}
		f.dispatch(res)
	}
}

func (f *Feed) dispatch(v any) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.lastReceive = time.Now()
	cbs := make([]Callback, 0, len(f.order))
	for _, id := range f.order {
		if cb, ok := f.subs[id]; ok {
			cbs = append(cbs, cb)
		}
	}
	observer := f.observer
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(v)
	}
	if observer != nil {
		observer(v)
	}
}

func (f *Feed) touchCall() {
	f.mu.Lock()
	f.lastCall = time.Now()
	f.mu.Unlock()
}

func (f *Feed) markFailed() {
	f.mu.Lock()
	f.stopped = true
	f.failed = true
	f.mu.Unlock()
}

// Retry clears the stopped/failed flags and restarts the run loop.
func (f *Feed) Retry(ctx context.Context) bool {
	f.mu.Lock()
	if !f.stopped || f.exhausted {
		f.mu.Unlock()
		return false
	}
	f.stopped = false
	f.failed = false
	f.retries++
	f.mu.Unlock()

	f.runLoop(ctx)
	return true
}

// stop cancels the run loop for good; used by the sweep when the last
// subscriber is gone.
func (f *Feed) stop() {
	f.mu.Lock()
	f.stopped = true
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Feed) markExhausted() {
	f.mu.Lock()
	f.exhausted = true
	f.mu.Unlock()
}

// retryAt is the earliest time the sweep may restart a stopped feed:
// lastCall + 10s * factor, where the factor steps up at 5/10/15/20 retries.
func (f *Feed) retryAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	factor := 1 + f.retries/5
	if factor > 5 {
		factor = 5
	}
	return f.lastCall.Add(backoffBase * time.Duration(factor))
}

func (f *Feed) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *Feed) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *Feed) Retries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries
}

func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) LastReceive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReceive
}
