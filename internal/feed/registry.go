package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Spec describes one subscription request.
type Spec struct {
	Method      string
	Symbol      string
	Credentials string // raw credentials, fingerprinted before use as a key
	Mode        Mode
}

// Options tunes a registry.
type Options struct {
	SweepEvery time.Duration // default 5s
	PollLimit  rate.Limit    // pacing for poll loops, 0 = unpaced
	MaxRetries int           // 0 = retry forever
}

// Registry creates feeds lazily, fans every dispatch out to an optional
// observe-everything subscriber, and periodically sweeps feeds to retry
// failures and garbage-collect empty ones. It is an explicit object owned by
// the composing caller; there is no process-wide feed map.
type Registry struct {
	exchange string
	client   Client
	opts     Options

	mu       sync.Mutex
	feeds    map[Key]*Feed
	subs     map[int64]*Feed
	nextID   int64
	observer Callback
}

func NewRegistry(exchange string, client Client, opts Options) *Registry {
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = 5 * time.Second
	}
	return &Registry{
		exchange: exchange,
		client:   client,
		opts:     opts,
		feeds:    make(map[Key]*Feed),
		subs:     make(map[int64]*Feed),
	}
}

// SetObserver installs the observe-everything subscriber. It sees every
// payload dispatched by every feed.
func (r *Registry) SetObserver(cb Callback) {
	r.mu.Lock()
	r.observer = cb
	r.mu.Unlock()
}

func (r *Registry) observe(v any) {
	r.mu.Lock()
	cb := r.observer
	r.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// fingerprint hides raw credentials behind a stable identifier.
func fingerprint(credentials string) string {
	if credentials == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(credentials)).String()
}

// Subscribe attaches cb to the feed described by spec (creating the feed on
// first use) and returns the subscription id.
func (r *Registry) Subscribe(ctx context.Context, spec Spec, cb Callback) int64 {
	key := Key{
		Exchange:    r.exchange,
		Method:      spec.Method,
		Symbol:      spec.Symbol,
		Credentials: fingerprint(spec.Credentials),
	}

	r.mu.Lock()
	f, ok := r.feeds[key]
	if !ok {
		f = newFeed(key, r.client, spec.Mode, r.opts.PollLimit, r.observe)
		r.feeds[key] = f
	}
	r.nextID++
	id := r.nextID
	r.subs[id] = f
	r.mu.Unlock()

	f.subscribe(ctx, id, cb)
	return id
}

// Unsubscribe removes the callback. The feed keeps running until the next
// sweep notices it has no subscribers.
func (r *Registry) Unsubscribe(id int64) {
	r.mu.Lock()
	f := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if f != nil {
		f.unsubscribe(id)
	}
}

// Feed returns the live feed for a spec, if one exists.
func (r *Registry) Feed(spec Spec) (*Feed, bool) {
	key := Key{
		Exchange:    r.exchange,
		Method:      spec.Method,
		Symbol:      spec.Symbol,
		Credentials: fingerprint(spec.Credentials),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[key]
	return f, ok
}

// Start runs the periodic sweep until ctx is canceled.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.opts.SweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.stopAll()
				return
			case <-ticker.C:
				r.Sweep(ctx, time.Now())
			}
		}
	}()
}

// Sweep garbage-collects feeds with no subscribers and retries stopped feeds
// whose backoff window has passed. Exported so tests and callers can drive it
// without the timer.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	r.mu.Lock()
	snapshot := make(map[Key]*Feed, len(r.feeds))
	for k, f := range r.feeds {
		snapshot[k] = f
	}
	r.mu.Unlock()

	for key, f := range snapshot {
		if f.SubscriberCount() == 0 {
			f.stop()
			r.mu.Lock()
			delete(r.feeds, key)
			r.mu.Unlock()
			log.Printf("feed %s %s %s: swept (no subscribers)", key.Exchange, key.Method, key.Symbol)
			continue
		}
		if !f.Stopped() {
			continue
		}
		if r.opts.MaxRetries > 0 && f.Retries() >= r.opts.MaxRetries {
			f.markExhausted()
			log.Printf("feed %s %s %s: gave up after %d retries", key.Exchange, key.Method, key.Symbol, f.Retries())
			continue
		}
		if now.After(f.retryAt()) {
			if f.Retry(ctx) {
				log.Printf("feed %s %s %s: retrying (attempt %d)", key.Exchange, key.Method, key.Symbol, f.Retries())
			}
		}
	}
}

func (r *Registry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.feeds {
		f.stop()
	}
}

// Len reports the number of live feeds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}
