package reqengine

// onConnect handles a TCP connect completion. Grounded on req_connected in
// the original: clear CONNECTING; if already canceled, deliver whichever
// terminal result was already chosen; on failure, cancel and deliver
// Canceled; on success, issue send.
func (e *Engine) onConnect(r *request, err error) {
	r.mu.Lock()
	r.flags &^= flagConnecting
	canceled := r.flags&flagCanceled != 0
	timedOut := r.flags&flagTimedOut != 0
	r.mu.Unlock()

	if canceled {
		result := Canceled
		if timedOut {
			result = Timeout
		}
		r.setResult(result, nil)
		e.maybeDeliver(r)
		return
	}

	if err != nil {
		e.cancel(r)
		r.setResult(Canceled, nil)
		e.maybeDeliver(r)
		return
	}

	r.mu.Lock()
	r.flags |= flagSending
	handle := r.handle
	dest := r.dest
	dscp := r.dscp
	buf := r.wireBuf
	ctx := r.ctx
	r.mu.Unlock()

	_ = handle.Socket().SetDSCP(dscp)
	_ = handle.StartTCP(ctx)

	e.recordSend(false)
	go func() {
		_, sendErr := handle.Socket().Send(ctx, buf, dest)
		e.onSendDone(r, sendErr)
	}()
}

// onSendDone handles a send (or retransmission send) completion. Per
// §9's second open question, a TCP send failure after a successful connect
// routes through this same cancel -> Canceled path; there is no retry.
func (e *Engine) onSendDone(r *request, err error) {
	r.mu.Lock()
	r.flags &^= flagSending
	canceled := r.flags&flagCanceled != 0
	timedOut := r.flags&flagTimedOut != 0
	r.mu.Unlock()

	if canceled {
		result := Canceled
		if timedOut {
			result = Timeout
		}
		r.setResult(result, nil)
		e.maybeDeliver(r)
		return
	}

	if err != nil {
		e.cancel(r)
		r.setResult(Canceled, nil)
		e.maybeDeliver(r)
		return
	}

	// Send succeeded; we are now waiting on the Dispatcher or the timer.
	// maybeDeliver is a no-op unless a response already raced us here.
	e.maybeDeliver(r)
}

// onResponse handles a reply arriving through the dispatch entry. A
// non-nil err here means the underlying connection died (TCP read/demux
// failure); when that happens on a shared TCP handle, the pooled entry is
// evicted so a later SHARE request dials fresh rather than reusing a dead
// connection.
func (e *Engine) onResponse(r *request, err error, payload []byte) {
	if err != nil {
		r.setResult(Canceled, nil)

		r.mu.Lock()
		isTCP := r.flags&flagTCP != 0
		shared := r.options.Has(OptShare)
		handle := r.handle
		dest := r.dest
		src := r.src
		r.mu.Unlock()

		if isTCP && shared && e.env.Dispatch != nil {
			e.env.Dispatch.ReleaseTCP(dest, src, handle)
		}
	} else {
		r.setResult(Success, payload)
	}
	e.cancel(r)
	e.maybeDeliver(r)
}

// onTimerEvent demultiplexes a fire of the request's Timer.
func (e *Engine) onTimerEvent(r *request, ev TimerEvent) {
	switch ev {
	case EventTick:
		e.onTimerTick(r)
	case EventExpiry:
		e.onTimeout(r)
	}
}

// onTimerTick is UDP-only: it preserves the exact guard from the source's
// req_timeout, where ev_type == ISC_TIMEREVENT_TICK && udpcount-- != 0 —
// the decrement happens on every tick, unconditionally, and the retry is
// gated on the value udpcount held *before* that decrement.
func (e *Engine) onTimerTick(r *request) {
	r.mu.Lock()
	remaining := r.udpRemaining
	r.udpRemaining--

	if remaining == 0 || r.flags&(flagSending|flagConnecting|flagCanceled) != 0 {
		r.mu.Unlock()
		return
	}
	r.flags |= flagSending
	handle := r.handle
	dest := r.dest
	buf := r.wireBuf
	ctx := r.ctx
	r.mu.Unlock()

	e.recordSend(true)
	go func() {
		_, err := handle.Socket().Send(ctx, buf, dest)
		e.onSendDone(r, err)
	}()
}

// onTimeout is the terminal overall-timeout expiry.
func (e *Engine) onTimeout(r *request) {
	r.mu.Lock()
	r.flags |= flagTimedOut
	r.mu.Unlock()

	e.cancel(r)
	r.setResult(Timeout, nil)
	e.maybeDeliver(r)
}

// cancel is the cancel() primitive: sets CANCELED, detaches the timer,
// asks the request's context to cancel any in-flight Connect/Send, and
// removes the dispatch entry; the handle itself is detached when the
// completion is delivered (maybeDeliver). Idempotent. After this call no
// new completion will arrive, but one already enqueued must still be
// absorbed — it will observe CANCELED and produce no further user-visible
// event (see onConnect/onSendDone above).
func (e *Engine) cancel(r *request) {
	r.mu.Lock()
	if r.flags&flagCanceled != 0 {
		r.mu.Unlock()
		return
	}
	r.flags |= flagCanceled
	timer := r.timer
	handle := r.handle
	entry := r.entry
	cancelFunc := r.cancelFunc
	r.entry = nil
	r.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}
	if timer != nil {
		timer.Stop()
	}
	if handle != nil {
		if entry != nil {
			handle.RemoveResponse(entry)
		}
	}
}

// requestCancel implements on_cancel_request: it posts a control event to
// the request's task rather than canceling inline, so the cancel work is
// serialized with every other callback the caller observes for this
// request.
func (e *Engine) requestCancel(r *request) {
	r.mu.Lock()
	if r.cancelPending || r.flags&flagCanceled != 0 {
		r.mu.Unlock()
		return
	}
	r.cancelPending = true
	task := r.task
	r.mu.Unlock()

	task.Send(func() {
		e.cancel(r)
		r.setResult(Canceled, nil)

		r.mu.Lock()
		r.cancelPending = false
		r.mu.Unlock()

		e.maybeDeliver(r)
	})
}

// maybeDeliver is the send_if_done discipline: the completion fires iff a
// result has been recorded, no cancel is pending, and neither CONNECTING
// nor SENDING is set. Handlers that cannot satisfy this simply return; a
// later handler observing a clear state delivers it.
func (e *Engine) maybeDeliver(r *request) {
	r.mu.Lock()
	if r.delivered || !r.resultSet || r.cancelPending {
		r.mu.Unlock()
		return
	}
	if r.flags&(flagConnecting|flagSending) != 0 {
		r.mu.Unlock()
		return
	}
	r.delivered = true
	task := r.task
	callback := r.callback
	arg := r.arg
	handle := r.handle
	result := r.result
	createdAt := r.createdAt
	r.mu.Unlock()

	e.recordOutcome(result, createdAt)
	e.unlink(r)
	if handle != nil {
		handle.Detach()
	}

	h := &Handle{r: r}
	task.Send(func() {
		callback(h, arg)
	})
}
