// Package callback holds the subscribable-callback contract and the
// owned subscription handle returned by a successful subscribe.
package callback

import (
	"runtime"
	"runtime/cgo"

	"go.uber.org/zap"

	"github.com/Semihalf/libtock-go/trap"
)

// Subscribable is anything a driver subscription can dispatch to. The
// kernel delivers three raw argument words whose meaning is defined by
// the driver that scheduled the event.
//
// Upcall must be written re-entrant-safe: a body that yields can cause
// nested dispatch of the same callback before an earlier invocation
// returns. Do not assume single-shot, exclusive execution.
type Subscribable interface {
	Upcall(arg1, arg2, arg3 uintptr)
}

// Subscription owns a live (driver, subscribe slot) registration. It is
// created only by a successful subscribe and holds the exclusive right,
// and obligation, to clear the slot. At most one live Subscription may
// exist per slot; the handle must not be copied.
//
// Releasing the handle re-registers the slot with a nil upcall and zero
// context, after which the kernel can no longer call into the process
// for this slot. Release happens either explicitly via Unsubscribe or
// unconditionally when the handle becomes unreachable.
type Subscription struct {
	st      *subState
	cleanup runtime.Cleanup
}

// subState carries everything release needs. Kept separate from the
// handle so the collection-time cleanup does not retain the handle.
type subState struct {
	raw    trap.Raw
	driver trap.DriverNum
	sub    trap.SubscribeNum
	handle cgo.Handle
	log    *zap.Logger
}

// NewSubscription wraps a registration the kernel has already accepted.
// Called by the syscall layer on a zero subscribe status; not intended
// for direct use.
func NewSubscription(raw trap.Raw, driver trap.DriverNum, sub trap.SubscribeNum, handle cgo.Handle, log *zap.Logger) *Subscription {
	if log == nil {
		log = zap.NewNop()
	}
	st := &subState{raw: raw, driver: driver, sub: sub, handle: handle, log: log}
	s := &Subscription{st: st}
	s.cleanup = runtime.AddCleanup(s, releaseSubState, st)
	return s
}

// Unsubscribe clears the kernel-side slot and consumes the handle. The
// returned status is the clear-slot trap's own result; a non-zero value
// means the kernel-side slot is in an unknown state, but the handle is
// consumed either way. Calling Unsubscribe on a consumed handle does
// nothing and reports success.
func (s *Subscription) Unsubscribe() trap.ReturnCode {
	st := s.st
	if st == nil {
		return trap.Success
	}
	s.st = nil
	s.cleanup.Stop()
	return st.clear()
}

// releaseSubState is the collection-time release path. The status has no
// observer here, so a failure is logged and swallowed: an unrevoked
// registration is a degraded state, not a crash.
func releaseSubState(st *subState) {
	if rc := st.clear(); !rc.Ok() {
		st.log.Warn("clear-slot trap failed during subscription release",
			zap.Uint32("driver", uint32(st.driver)),
			zap.Uint32("subscribe", uint32(st.sub)),
			zap.Int("status", int(rc)),
		)
	}
}

// clear issues the single clear-slot trap and drops the context handle
// that kept the callback object reachable.
func (st *subState) clear() trap.ReturnCode {
	rc := st.raw.Subscribe(st.driver, st.sub, nil, 0)
	st.handle.Delete()
	return rc
}
