package reqengine

import (
	"sync"
	"sync/atomic"
	"time"
)

// shardCount is the fixed size of the per-request lock bank (§5's "N≈7"):
// a concurrency optimization, not a hash map — any small prime or
// power-of-two works as long as it is at least the expected concurrency.
const shardCount = 7

// Engine is the RequestEngine capability: a registry of live requests,
// shared-dispatch selection, and shutdown orchestration. A program
// normally runs one, though nothing prevents several.
//
// Concurrency: one coarse mutex (mu) guards the registry, the exiting flag
// and the shutdown-notify list; the two refcounts are atomics. A fixed bank of shard mutexes guards each
// request's mutable state; a request keeps the same shard for its whole
// life. Lock order is always mu, then a shard — never the reverse —
// and no blocking I/O is ever performed while either is held.
type Engine struct {
	env Env

	mu        sync.Mutex
	shards    [shardCount]sync.Mutex
	nextShard atomic.Uint32

	requests map[*request]struct{}
	exiting  bool

	eref atomic.Int32
	iref atomic.Int32

	shutdownNotify []func()
	shutdownDone   bool
}

// New constructs an Engine with one external reference already held by the
// caller (matching engine_create's implicit initial eref=1).
func New(env Env) *Engine {
	if env.Timer == nil {
		env.Timer = NewTimerService()
	}
	if env.Scheduler == nil {
		env.Scheduler = NewScheduler()
	}
	e := &Engine{env: env, requests: make(map[*request]struct{})}
	e.eref.Store(1)
	return e
}

// Attach adds an external reference to the engine.
func (e *Engine) Attach() {
	e.eref.Add(1)
}

// Detach releases an external reference. The last detach, once iref has
// drained to zero and shutdown has completed, destroys the engine.
func (e *Engine) Detach() {
	if e.eref.Add(-1) != 0 {
		return
	}
	e.maybeDestroy()
}

// Shutdown sets the exiting flag, cancels every currently live request,
// and — once every request has been destroyed by its caller (iref == 0)
// — delivers all queued when-shutdown notifications. Idempotent.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.exiting {
		e.mu.Unlock()
		return
	}
	e.exiting = true
	live := make([]*request, 0, len(e.requests))
	for r := range e.requests {
		live = append(live, r)
	}
	e.mu.Unlock()

	for _, r := range live {
		e.requestCancel(r)
	}

	e.maybeCompleteShutdown()
}

// WhenShutdown delivers fn immediately if the engine has already finished
// shutting down, or enqueues it for delivery at that point otherwise.
func (e *Engine) WhenShutdown(fn func()) {
	e.mu.Lock()
	if e.shutdownDone {
		e.mu.Unlock()
		fn()
		return
	}
	e.shutdownNotify = append(e.shutdownNotify, fn)
	e.mu.Unlock()
}

func (e *Engine) maybeCompleteShutdown() {
	e.mu.Lock()
	if !e.exiting || e.shutdownDone || e.iref.Load() != 0 {
		e.mu.Unlock()
		return
	}
	e.shutdownDone = true
	notify := e.shutdownNotify
	e.shutdownNotify = nil
	e.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	e.maybeDestroy()
}

// maybeDestroy mirrors the original's destroy(), which runs only once both
// refcounts reach zero and the request list is empty, and with no locks
// held. Go's GC reclaims the Engine itself; this hook exists for parity
// and as a place future resource teardown (e.g. detaching default UDP
// dispatch handles) would go.
func (e *Engine) maybeDestroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eref.Load() != 0 || e.iref.Load() != 0 || len(e.requests) != 0 {
		return
	}
}

// tryLink admits r unless the engine is exiting: it assigns a shard,
// registers r on the live-request list, and increments iref, all under
// the single engine mutex acquisition step 8 requires.
func (e *Engine) tryLink(r *request) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exiting {
		return false
	}
	shard := e.nextShardIndex()
	r.shard = shard
	r.mu = &e.shards[shard]
	e.requests[r] = struct{}{}
	e.iref.Add(1)
	return true
}

func (e *Engine) unlink(r *request) {
	e.mu.Lock()
	delete(e.requests, r)
	e.mu.Unlock()
}

func (e *Engine) nextShardIndex() int {
	return int(e.nextShard.Add(1)-1) % shardCount
}

// recordSend feeds the configured Stats collector, if any, one wire send.
func (e *Engine) recordSend(retransmit bool) {
	if e.env.Stats != nil {
		e.env.Stats.RecordSend(retransmit)
	}
}

// recordOutcome feeds the configured Stats collector a terminal result and
// the latency since createdAt.
func (e *Engine) recordOutcome(result Result, createdAt time.Time) {
	if e.env.Stats != nil {
		e.env.Stats.RecordOutcome(result.String(), time.Since(createdAt).Nanoseconds())
	}
}
