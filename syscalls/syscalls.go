package syscalls

import (
	"runtime/cgo"

	"go.uber.org/zap"

	"github.com/Semihalf/libtock-go/callback"
	"github.com/Semihalf/libtock-go/memory"
	"github.com/Semihalf/libtock-go/trap"
)

// Syscalls is the primitive call layer over one trap platform.
type Syscalls struct {
	raw trap.Raw
	log *zap.Logger
}

// Option configures a Syscalls instance.
type Option func(*Syscalls)

// WithLogger sets the logger used for swallowed handle-release failures.
func WithLogger(log *zap.Logger) Option {
	return func(s *Syscalls) { s.log = log }
}

// New creates the call layer for the given platform.
func New(raw trap.Raw, opts ...Option) *Syscalls {
	s := &Syscalls{raw: raw, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Command issues an immediate, synchronous request to a driver. The
// meaning of both arguments and the returned status is driver-defined;
// the status is returned as-is.
func (s *Syscalls) Command(driver trap.DriverNum, cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
	return s.raw.Command(driver, cmd, arg1, arg2)
}

// Command1Insecure is a variant of Command that only populates the first
// argument register. It generates a shorter calling sequence than
// Command, but leaves the second argument register as-is, leaking its
// prior contents to the driver being called. Prefer Command unless the
// smaller sequence outweighs the risk of exposing arbitrary state to the
// driver; at the moment the only suitable use is the low-level debug
// interface.
func (s *Syscalls) Command1Insecure(driver trap.DriverNum, cmd trap.CommandNum, arg uintptr) trap.ReturnCode {
	return s.raw.Command1(driver, cmd, arg)
}

// Yield suspends the calling context until the kernel delivers a pending
// event. Registered upcalls are dispatched on the calling goroutine
// before Yield returns, and may nest if an upcall body yields again.
func (s *Syscalls) Yield() {
	s.raw.Yield()
}

// SubscribeRaw registers a bare upcall and context word without creating
// an owned handle. Low-level escape hatch: the caller takes over the
// obligation to clear the slot. Most code wants Subscribe.
func (s *Syscalls) SubscribeRaw(driver trap.DriverNum, sub trap.SubscribeNum, fn trap.Upcall, userdata uintptr) trap.ReturnCode {
	return s.raw.Subscribe(driver, sub, fn, userdata)
}

// Subscribe registers cb for a driver's subscription slot.
//
// The trap boundary carries only a bare function and one context word,
// so a dedicated trampoline is instantiated per concrete callback type;
// the context word is a cgo handle the trampoline resolves back to cb
// when the kernel delivers an event. The subscription owns that handle,
// which keeps cb reachable for the whole registration lifetime.
//
// On a zero status the returned subscription owns the slot. On any other
// status no registration was retained and the error is the raw code
// (a trap.ReturnCode).
func Subscribe[CB callback.Subscribable](s *Syscalls, driver trap.DriverNum, sub trap.SubscribeNum, cb CB) (*callback.Subscription, error) {
	h := cgo.NewHandle(cb)
	rc := s.raw.Subscribe(driver, sub, trampoline[CB], uintptr(h))
	if !rc.Ok() {
		h.Delete()
		return nil, rc
	}
	return callback.NewSubscription(s.raw, driver, sub, h, s.log), nil
}

// trampoline is the kernel's re-entrant call target, monomorphic per
// callback type. It reconstructs the live callback from the context word
// and dispatches.
func trampoline[CB callback.Subscribable](arg1, arg2, arg3, userdata uintptr) {
	cb := cgo.Handle(userdata).Value().(CB)
	cb.Upcall(arg1, arg2, arg3)
}

// Allow transfers write visibility of buf to a driver. On a zero status
// the returned handle owns the transfer and buf must not be touched
// until the handle is reclaimed. On any other status no transfer
// occurred, buf is immediately reusable, and the error is the raw code
// (a trap.ReturnCode).
func (s *Syscalls) Allow(driver trap.DriverNum, num trap.AllowNum, buf []byte) (*memory.SharedMemory, error) {
	var ptr *byte
	if len(buf) > 0 {
		ptr = &buf[0]
	}
	rc := s.raw.Allow(driver, num, ptr, len(buf))
	if !rc.Ok() {
		return nil, rc
	}
	return memory.NewSharedMemory(s.raw, driver, num, buf, s.log), nil
}
