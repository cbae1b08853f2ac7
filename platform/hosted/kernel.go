package hosted

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/Semihalf/libtock-go/internal/logging"
	"github.com/Semihalf/libtock-go/trap"
)

// slot identifies one registration or buffer slot within a driver.
type slot struct {
	driver trap.DriverNum
	num    uint32
}

// upcallEntry is a live (function, context word) registration.
type upcallEntry struct {
	fn       trap.Upcall
	userdata uintptr
}

// region is a buffer currently shared with a driver.
type region struct {
	ptr    *byte
	length int
}

// event is a pending upcall delivery, captured at schedule time so a
// slot cleared before the next yield cannot fire a stale upcall.
type event struct {
	entry upcallEntry
	slot  slot
	args  [3]uintptr
}

// Kernel is the in-process kernel. It satisfies trap.Raw and is safe for
// use by one yielding process goroutine plus any number of goroutines
// delivering events on behalf of drivers.
type Kernel struct {
	cfg *Config
	log *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	drivers map[trap.DriverNum]Driver
	subs    map[slot]upcallEntry
	allows  map[slot]region
	events  []event

	// residue models the second trap argument register: it keeps the
	// last value a full Command stored, which Command1 leaks to the
	// driver it calls.
	residue uintptr
}

// New creates a hosted kernel. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Kernel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return nil, fmt.Errorf("failed to create hosted kernel logger: %w", err)
	}
	k := &Kernel{
		cfg:     cfg,
		log:     log,
		drivers: make(map[trap.DriverNum]Driver),
		subs:    make(map[slot]upcallEntry),
		allows:  make(map[slot]region),
	}
	k.cond = sync.NewCond(&k.mu)
	return k, nil
}

// SetLogger replaces the kernel's logger. Intended for tests that want
// kernel output routed through the test log.
func (k *Kernel) SetLogger(log *zap.Logger) {
	if log != nil {
		k.log = log
	}
}

// RegisterDriver installs a driver under the given number, replacing any
// previous driver with that number.
func (k *Kernel) RegisterDriver(num trap.DriverNum, d Driver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.drivers[num] = d
}

// Command dispatches a full two-argument command to a driver.
func (k *Kernel) Command(driver trap.DriverNum, cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
	k.mu.Lock()
	k.residue = arg2
	d, ok := k.drivers[driver]
	k.mu.Unlock()
	if !ok {
		return trap.NoDevice
	}
	rc := d.Command(cmd, arg1, arg2)
	k.trace("command", driver, uint32(cmd), rc)
	return rc
}

// Command1 dispatches a single-argument command. The driver observes the
// stale second argument word, exactly as on a real target.
func (k *Kernel) Command1(driver trap.DriverNum, cmd trap.CommandNum, arg uintptr) trap.ReturnCode {
	k.mu.Lock()
	leaked := k.residue
	d, ok := k.drivers[driver]
	k.mu.Unlock()
	if !ok {
		return trap.NoDevice
	}
	rc := d.Command(cmd, arg, leaked)
	k.trace("command1", driver, uint32(cmd), rc)
	return rc
}

// Subscribe installs or clears an upcall registration. Clearing also
// drops pending deliveries for the slot so a cleared upcall can never
// fire on a later yield.
func (k *Kernel) Subscribe(driver trap.DriverNum, sub trap.SubscribeNum, fn trap.Upcall, userdata uintptr) trap.ReturnCode {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.drivers[driver]; !ok {
		return trap.NoDevice
	}
	key := slot{driver, uint32(sub)}

	if fn == nil {
		delete(k.subs, key)
		k.dropEventsLocked(key)
		k.trace("subscribe-clear", driver, uint32(sub), trap.Success)
		return trap.Success
	}

	if k.cfg.StrictSlots {
		if _, occupied := k.subs[key]; occupied {
			k.trace("subscribe", driver, uint32(sub), trap.Busy)
			return trap.Busy
		}
	}
	k.subs[key] = upcallEntry{fn: fn, userdata: userdata}
	k.trace("subscribe", driver, uint32(sub), trap.Success)
	return trap.Success
}

// Allow shares or revokes a buffer region for a driver slot.
func (k *Kernel) Allow(driver trap.DriverNum, num trap.AllowNum, ptr *byte, length int) trap.ReturnCode {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.drivers[driver]; !ok {
		return trap.NoDevice
	}
	key := slot{driver, uint32(num)}

	if ptr == nil || length == 0 {
		delete(k.allows, key)
		k.trace("allow-revoke", driver, uint32(num), trap.Success)
		return trap.Success
	}

	if k.cfg.StrictSlots {
		if _, occupied := k.allows[key]; occupied {
			k.trace("allow", driver, uint32(num), trap.Busy)
			return trap.Busy
		}
		if k.overlapsLocked(ptr, length) {
			k.trace("allow", driver, uint32(num), trap.Invalid)
			return trap.Invalid
		}
	}
	k.allows[key] = region{ptr: ptr, length: length}
	k.trace("allow", driver, uint32(num), trap.Success)
	return trap.Success
}

// Yield blocks until an event is pending, then dispatches exactly one
// upcall on the calling goroutine. Nested dispatch happens naturally
// when an upcall body yields again.
func (k *Kernel) Yield() {
	k.mu.Lock()
	for len(k.events) == 0 {
		k.cond.Wait()
	}
	ev := k.events[0]
	k.events = k.events[1:]
	k.mu.Unlock()

	ev.entry.fn(ev.args[0], ev.args[1], ev.args[2], ev.entry.userdata)
}

// Deliver schedules an upcall for the given slot with three argument
// words. It fails when the slot has no live registration or the pending
// queue is full; either way no event is queued.
func (k *Kernel) Deliver(driver trap.DriverNum, sub trap.SubscribeNum, arg1, arg2, arg3 uintptr) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := slot{driver, uint32(sub)}
	entry, ok := k.subs[key]
	if !ok {
		return fmt.Errorf("no live registration for driver %d subscribe %d", driver, sub)
	}
	if len(k.events) >= k.cfg.MaxPendingEvents {
		k.log.Warn("dropping upcall delivery, pending queue full",
			zap.Uint32("driver", uint32(driver)),
			zap.Uint32("subscribe", uint32(sub)),
		)
		return fmt.Errorf("pending event queue full (%d)", k.cfg.MaxPendingEvents)
	}
	k.events = append(k.events, event{entry: entry, slot: key, args: [3]uintptr{arg1, arg2, arg3}})
	k.cond.Broadcast()
	return nil
}

// Pending returns the number of queued, undelivered events.
func (k *Kernel) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.events)
}

// AllowedRegion returns the buffer currently shared for a driver slot.
// Drivers use it to read arguments from and write results into process
// memory while the region is allowed.
func (k *Kernel) AllowedRegion(driver trap.DriverNum, num trap.AllowNum) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.allows[slot{driver, uint32(num)}]
	if !ok {
		return nil, false
	}
	return unsafe.Slice(r.ptr, r.length), true
}

// dropEventsLocked removes queued deliveries targeting the given slot.
func (k *Kernel) dropEventsLocked(key slot) {
	kept := k.events[:0]
	for _, ev := range k.events {
		if ev.slot != key {
			kept = append(kept, ev)
		}
	}
	k.events = kept
}

// overlapsLocked reports whether [ptr, ptr+length) intersects any
// currently allowed region.
func (k *Kernel) overlapsLocked(ptr *byte, length int) bool {
	base := uintptr(unsafe.Pointer(ptr))
	end := base + uintptr(length)
	for _, r := range k.allows {
		rb := uintptr(unsafe.Pointer(r.ptr))
		re := rb + uintptr(r.length)
		if base < re && rb < end {
			return true
		}
	}
	return false
}

func (k *Kernel) trace(verb string, driver trap.DriverNum, num uint32, rc trap.ReturnCode) {
	if !k.cfg.Trace {
		return
	}
	k.log.Debug("trap",
		zap.String("verb", verb),
		zap.Uint32("driver", uint32(driver)),
		zap.Uint32("num", num),
		zap.Int("status", int(rc)),
	)
}
