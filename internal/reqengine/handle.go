package reqengine

import (
	"fmt"

	"github.com/jroosing/hydrareq/internal/wire"
)

// Handle is the caller-facing reference to a single request, returned by
// CreateRaw/CreateVia. It stays valid across the request's whole life;
// after the callback fires, the caller must eventually call Destroy to
// release the request's hold on the engine (iref).
type Handle struct {
	r *request
}

// Cancel requests cancellation. It never blocks and is safe to call any
// number of times, including after the request has already completed. The
// terminal result depends on what it raced: Canceled if it wins, Timeout
// or the response's own result if it loses.
func (h *Handle) Cancel() {
	h.r.engine.requestCancel(h.r)
}

// Destroy releases the caller's hold on the request. Call this only after
// the callback has fired; it decrements the engine's internal refcount and
// may let a pending Shutdown complete.
func (h *Handle) Destroy() {
	e := h.r.engine
	e.iref.Add(-1)
	e.maybeCompleteShutdown()
	e.maybeDestroy()
}

// Result returns the terminal outcome. Only meaningful after the callback
// has fired; returns false if the request hasn't completed yet.
func (h *Handle) Result() (Result, bool) {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.resultSet
}

// Answer returns the raw response bytes, or nil if the result was not
// Success.
func (h *Handle) Answer() []byte {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// Response parses the raw response into a structured message via the
// engine's configured Codec. Only meaningful after the callback has
// fired; returns an error if the request did not complete with Success
// or the engine was built without a Codec.
func (h *Handle) Response() (wire.Packet, error) {
	r := h.r
	r.mu.Lock()
	result := r.result
	resultSet := r.resultSet
	response := r.response
	r.mu.Unlock()

	if !resultSet {
		return wire.Packet{}, fmt.Errorf("reqengine: request has not completed yet")
	}
	if result != Success {
		return wire.Packet{}, fmt.Errorf("reqengine: result was %s, not success", result)
	}
	codec := r.engine.env.Codec
	if codec == nil {
		return wire.Packet{}, fmt.Errorf("reqengine: engine has no codec configured")
	}
	return codec.Parse(response)
}

// TraceID returns the opaque identifier assigned to this request at
// creation, for correlating log lines across its lifecycle.
func (h *Handle) TraceID() string {
	return h.r.traceID
}

// UsedTCP reports whether this request sent over TCP.
func (h *Handle) UsedTCP() bool {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags&flagTCP != 0
}

// VerifyTSIG checks the response's TSIG MAC against the key and saved
// query MAC this request was created with, using codec (normally the
// engine's own Env.Codec). Returns an error if this request carried no
// TSIG key.
func (h *Handle) VerifyTSIG(codec wire.Codec) error {
	r := h.r
	r.mu.Lock()
	key := r.tsigKey
	queryMAC := r.queryMAC
	response := r.response
	r.mu.Unlock()

	if key == nil {
		return fmt.Errorf("reqengine: request was not created with a TSIG key")
	}
	return codec.VerifyTSIG(response, *key, queryMAC)
}
