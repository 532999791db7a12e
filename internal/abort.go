package internal

import (
	"log/slog"
)

// watchAbort observes the request context. A cancellation before the
// transport is claimed marks the request aborted; the onRequestAbort chain
// itself runs on the request goroutine once the running step returns.
// The returned func stops watching.
func (d *dispatch) watchAbort() func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-d.req.raw.Context().Done():
			d.markAborted()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// markAborted flags the request aborted and closes its abort signal. Once the
// transport is claimed the request can no longer be aborted. It reports
// whether the request is aborted.
func (d *dispatch) markAborted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.markAbortedLocked()
}

func (d *dispatch) markAbortedLocked() bool {
	if d.aborted || d.writing {
		return d.aborted
	}
	d.aborted = true
	close(d.req.abortCh)
	return true
}

// checkAbort reports whether the request is aborted. A cancelled request
// context is detected here on the calling goroutine, so a step that returns
// because of the cancellation never outruns the watcher.
func (d *dispatch) checkAbort() bool {
	if d.req.raw.Context().Err() != nil {
		return d.markAborted()
	}
	return d.isAborted()
}

func (d *dispatch) isAborted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

// runAbortHooks runs the onRequestAbort chain on the request goroutine.
// Each hook is isolated: a failing hook is logged and the next one still runs.
// onError, the write and onResponse are skipped for aborted requests.
func (d *dispatch) runAbortHooks() {
	d.log.Info("request aborted", slog.String("url", d.req.URL()))

	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.runChain(PhaseOnRequestAbort, d.route.chains[PhaseOnRequestAbort])
}

// timeout fires the onTimeout chain once. Dispatch is not interrupted, but
// the chain waits for a running hook to return.
func (d *dispatch) timeout() {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	d.mu.Lock()
	if d.writing || d.aborted || d.timedOut {
		d.mu.Unlock()
		return
	}
	d.timedOut = true
	chain := d.route.chains[PhaseOnTimeout]
	d.mu.Unlock()

	d.log.Warn("request timed out", slog.Duration("timeout", d.app.connectionTimeout))
	d.runChain(PhaseOnTimeout, chain)
}

// runChain runs a chain outside the request flow. It does not wait on the
// request context, which may already be done. The caller holds hookMu.
func (d *dispatch) runChain(phase Phase, chain []*hookEntry) {
	for _, h := range chain {
		t := h.call(d.contextFor(h.owner), nil)
		<-t.done
		if t.err != nil {
			d.log.Error(string(phase)+" hook failed", slog.Any("error", t.err))
		}
	}
}
