package reqengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jroosing/hydrareq/internal/dispatch"
	"github.com/jroosing/hydrareq/internal/wire"
)

// CreateError is returned synchronously by CreateRaw/CreateVia when a
// request is refused before (or instead of) being admitted — the caller
// never receives a callback for it.
type CreateError struct {
	Result Result
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("reqengine: create failed: %s", e.Result)
}

// CreateRawParams parameters for CreateRaw.
type CreateRawParams struct {
	WireBuf []byte // unframed DNS message; TCP framing is added internally.

	Dest netip.AddrPort
	Src  netip.AddrPort // zero value means "unset"
	DSCP int

	Options      Options
	TotalTimeout time.Duration
	UDPTimeout   time.Duration
	UDPRetries   int

	Task     Task
	Callback Callback
	Arg      any
}

// CreateViaParams parameters for CreateVia.
type CreateViaParams struct {
	Message wire.Packet
	TSIGKey *wire.TSIGKey

	Dest netip.AddrPort
	Src  netip.AddrPort
	DSCP int

	Options      Options
	TotalTimeout time.Duration
	UDPTimeout   time.Duration
	UDPRetries   int

	Task     Task
	Callback Callback
	Arg      any
}

// CreateRaw accepts an already-rendered wire message and delivers it,
// using the caller's message ID when OptFixedID is set, or having the
// dispatcher assign one and overwriting the first two bytes of the buffer
// otherwise.
func (e *Engine) CreateRaw(p CreateRawParams) (*Handle, error) {
	fixedID := p.Options.Has(OptFixedID)
	return e.createCommon(p.WireBuf, fixedID, p.Dest, p.Src, p.DSCP, p.Options,
		p.TotalTimeout, p.UDPTimeout, p.UDPRetries, p.Task, p.Callback, p.Arg, nil, nil)
}

// CreateVia renders a structured message (optionally TSIG-signing it),
// automatically promoting to TCP and re-rendering if the UDP rendering
// reports the message is too large.
func (e *Engine) CreateVia(p CreateViaParams) (*Handle, error) {
	if e.env.Codec == nil {
		return nil, &CreateError{Result: FormErr}
	}

	renderOpts := wire.RenderOptions{Case: p.Options.Has(OptCase), TCP: p.Options.Has(OptTCP)}

	raw, queryMAC, err := e.render(p.Message, p.TSIGKey, renderOpts)
	if err != nil && errors.Is(err, wire.ErrUseTCP) && !renderOpts.TCP {
		renderOpts.TCP = true
		p.Options |= OptTCP
		raw, queryMAC, err = e.render(p.Message, p.TSIGKey, renderOpts)
	}
	if err != nil {
		return nil, &CreateError{Result: FormErr}
	}

	// Render already applied TCP framing when renderOpts.TCP; createCommon
	// applies its own framing uniformly for both the raw and via paths, so
	// strip the codec's length prefix here rather than double-frame it.
	if renderOpts.TCP {
		if len(raw) < 2 {
			return nil, &CreateError{Result: FormErr}
		}
		raw = raw[2:]
	}

	return e.createCommon(raw, false, p.Dest, p.Src, p.DSCP, p.Options,
		p.TotalTimeout, p.UDPTimeout, p.UDPRetries, p.Task, p.Callback, p.Arg, p.TSIGKey, queryMAC)
}

func (e *Engine) render(msg wire.Packet, key *wire.TSIGKey, opts wire.RenderOptions) ([]byte, []byte, error) {
	if key != nil {
		return e.env.Codec.SignQuery(msg, *key, opts)
	}
	raw, err := e.env.Codec.Render(msg, opts)
	return raw, nil, err
}

// createCommon implements the ten-step contract shared by CreateRaw and
// CreateVia.
func (e *Engine) createCommon(
	wireBuf []byte,
	fixedID bool,
	dest, src netip.AddrPort,
	dscp int,
	opts Options,
	totalTimeout, udpTimeout time.Duration,
	udpRetries int,
	task Task,
	callback Callback,
	arg any,
	tsigKey *wire.TSIGKey,
	queryMAC []byte,
) (*Handle, error) {
	// 1. Validate arguments.
	if !dest.IsValid() {
		return nil, &CreateError{Result: FormErr}
	}
	if totalTimeout <= 0 {
		return nil, &CreateError{Result: FormErr}
	}
	if src.IsValid() && src.Addr().Is4() != dest.Addr().Is4() {
		return nil, &CreateError{Result: FamilyMismatch}
	}
	if callback == nil || task == nil {
		return nil, &CreateError{Result: FormErr}
	}
	if len(wireBuf) < wire.HeaderSize || len(wireBuf) > 65535 {
		return nil, &CreateError{Result: FormErr}
	}

	// 2. Blackhole and rate-limit checks.
	if e.env.Dispatch != nil && e.env.Dispatch.Blackhole().Match(dest.Addr()) {
		e.recordOutcome(Blackholed, time.Now())
		return nil, &CreateError{Result: Blackholed}
	}
	if e.env.Dispatch != nil && !e.env.Dispatch.Allow() {
		e.recordOutcome(RateLimited, time.Now())
		return nil, &CreateError{Result: RateLimited}
	}

	// 3. Derive UDP retransmission period.
	if udpRetries > 0 && udpTimeout == 0 {
		udpTimeout = totalTimeout / time.Duration(udpRetries+1)
		if udpTimeout <= 0 {
			udpTimeout = time.Millisecond
		}
	}

	// 4. Allocate the request and its timer.
	ctx, cancelFunc := context.WithCancel(context.Background())
	r := &request{
		engine:       e,
		dest:         dest,
		src:          src,
		dscp:         dscp,
		options:      opts,
		task:         task,
		callback:     callback,
		arg:          arg,
		tsigKey:      tsigKey,
		queryMAC:     queryMAC,
		totalTimeout: totalTimeout,
		udpInterval:  udpTimeout,
		udpRemaining: udpRetries,
		createdAt:    time.Now(),
		traceID:      newTraceID(),
		ctx:          ctx,
		cancelFunc:   cancelFunc,
	}
	r.timer = e.env.Timer.Create(func(ev TimerEvent) { e.onTimerEvent(r, ev) })

	// 5. Choose transport and obtain a dispatch handle.
	useTCP := opts.Has(OptTCP) || len(wireBuf) > 512
	handle, connected, effSrc, err := e.selectDispatch(useTCP, opts.Has(OptShare), dest, src)
	if err != nil {
		r.timer.Stop()
		cancelFunc()
		return nil, err
	}
	if useTCP {
		r.flags |= flagTCP
		r.src = effSrc
	}

	// 6. Register a response slot, retrying once on FIXED_ID collision.
	id, entry, err := e.registerResponse(&handle, &connected, useTCP, dest, src, wireBuf, fixedID, r)
	if err != nil {
		r.timer.Stop()
		cancelFunc()
		handle.Detach()
		return nil, err
	}
	if !fixedID {
		_ = wire.SetMessageID(wireBuf, id)
	}
	r.handle = handle
	r.entry = entry

	// 7. Build the wire buffer (TCP framing).
	if useTCP {
		framed := make([]byte, 2+len(wireBuf))
		binary.BigEndian.PutUint16(framed, uint16(len(wireBuf)))
		copy(framed[2:], wireBuf)
		r.wireBuf = framed
	} else {
		r.wireBuf = wireBuf
	}

	// 8. Link under the engine mutex; refuse if exiting.
	if !e.tryLink(r) {
		r.timer.Stop()
		cancelFunc()
		handle.RemoveResponse(entry)
		handle.Detach()
		return nil, &CreateError{Result: ShuttingDown}
	}

	// 9. Arm the timer.
	if useTCP {
		r.timer.Reset(TimerOnce, totalTimeout, 0)
	} else {
		r.timer.Reset(TimerLimited, totalTimeout, udpTimeout)
	}

	// 10. Issue connect (fresh TCP) or send (UDP, or reused TCP). DSCP is
	// applied right before the first socket operation that can carry it:
	// immediately for UDP and a reused (already-connected) TCP socket,
	// after Connect succeeds for a fresh one (see onConnect).
	r.mu.Lock()
	if useTCP && !connected {
		r.flags |= flagConnecting
		r.mu.Unlock()
		go func() {
			connErr := handle.Socket().Connect(ctx, dest)
			e.onConnect(r, connErr)
		}()
	} else {
		r.flags |= flagSending
		r.mu.Unlock()
		_ = handle.Socket().SetDSCP(dscp)
		if useTCP {
			// A reused pooled handle: StartTCP is idempotent, so this is a
			// no-op if the read loop was already started for an earlier
			// request on the same connection.
			_ = handle.StartTCP(ctx)
		}
		e.recordSend(false)
		go func() {
			_, sendErr := handle.Socket().Send(ctx, r.wireBuf, dest)
			e.onSendDone(r, sendErr)
		}()
	}

	return &Handle{r: r}, nil
}

// selectDispatch implements step 5: TCP reuses a SHARE'd connection or
// dials fresh; UDP uses the engine's per-family default when src is unset,
// or a per-source dispatch handle from the Dispatcher otherwise.
func (e *Engine) selectDispatch(useTCP, share bool, dest, src netip.AddrPort) (dispatch.Handle, bool, netip.AddrPort, error) {
	if useTCP {
		if e.env.Dispatch == nil {
			return nil, false, netip.AddrPort{}, &CreateError{Result: FormErr}
		}
		effSrc := effectiveSrc(src, dest)
		if share {
			h, connected, err := e.env.Dispatch.GetTCP(context.Background(), dest, effSrc)
			if err != nil {
				return nil, false, netip.AddrPort{}, &CreateError{Result: Canceled}
			}
			return h, connected, effSrc, nil
		}
		h, err := e.env.Dispatch.CreateTCP(dest, effSrc)
		if err != nil {
			return nil, false, netip.AddrPort{}, &CreateError{Result: Canceled}
		}
		return h, false, effSrc, nil
	}

	if src.IsValid() {
		if e.env.Dispatch == nil {
			return nil, false, netip.AddrPort{}, &CreateError{Result: FormErr}
		}
		s := src
		h, err := e.env.Dispatch.GetUDP(&s)
		if err != nil {
			return nil, false, netip.AddrPort{}, &CreateError{Result: Canceled}
		}
		return h, true, netip.AddrPort{}, nil
	}

	var h dispatch.Handle
	if dest.Addr().Is4() {
		h = e.env.DefaultUDPv4
	} else {
		h = e.env.DefaultUDPv6
	}
	if h == nil {
		return nil, false, netip.AddrPort{}, &CreateError{Result: FamilyNotSupport}
	}
	return h, true, netip.AddrPort{}, nil
}

// registerResponse implements step 6, including the FIXED_ID collision
// retry: on a TCP handle, a collision gets one retry against a fresh
// connection (never reused, since a fresh connection has an empty ID
// table).
func (e *Engine) registerResponse(
	handle *dispatch.Handle, connected *bool, useTCP bool,
	dest, src netip.AddrPort, wireBuf []byte, fixedID bool, r *request,
) (uint16, *dispatch.Entry, error) {
	var reqID *uint16
	if fixedID {
		id, err := wire.MessageID(wireBuf)
		if err != nil {
			return 0, nil, &CreateError{Result: FormErr}
		}
		reqID = &id
	}

	onResponse := func(err error, payload []byte) { e.onResponse(r, err, payload) }

	id, entry, err := (*handle).AddResponse(dispatch.ResponseOptions{RequestedID: reqID}, dest, onResponse)
	if err == nil {
		return id, entry, nil
	}

	if !errors.Is(err, dispatch.ErrIDInUse) || !useTCP {
		return 0, nil, &CreateError{Result: FormErr}
	}

	// FIXED_ID collision on TCP: retry once with a freshly established
	// connection.
	(*handle).Detach()
	fresh, err := e.env.Dispatch.CreateTCP(dest, effectiveSrc(src, dest))
	if err != nil {
		return 0, nil, &CreateError{Result: Canceled}
	}
	*handle = fresh
	*connected = false

	id, entry, err = fresh.AddResponse(dispatch.ResponseOptions{RequestedID: reqID}, dest, onResponse)
	if err != nil {
		fresh.Detach()
		return 0, nil, &CreateError{Result: FormErr}
	}
	return id, entry, nil
}

func effectiveSrc(src, dest netip.AddrPort) netip.AddrPort {
	if src.IsValid() {
		return src
	}
	return wildcardFor(dest)
}

func wildcardFor(dest netip.AddrPort) netip.AddrPort {
	if dest.Addr().Is4() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
}
