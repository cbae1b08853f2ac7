package hosted

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Semihalf/libtock-go/syscalls"
	"github.com/Semihalf/libtock-go/trap"
)

// countingCallback records dispatch order and nesting depth; its state
// tolerates re-entrant dispatch from nested yields.
type countingCallback struct {
	calls    int
	depth    int
	maxDepth int
	args     [][3]uintptr
	onCall   func(n int)
}

func (c *countingCallback) Upcall(arg1, arg2, arg3 uintptr) {
	c.depth++
	if c.depth > c.maxDepth {
		c.maxDepth = c.depth
	}
	c.calls++
	c.args = append(c.args, [3]uintptr{arg1, arg2, arg3})
	if c.onCall != nil {
		c.onCall(c.calls)
	}
	c.depth--
}

func newTestKernel(t *testing.T, cfg *Config) *Kernel {
	t.Helper()
	k, err := New(cfg)
	require.NoError(t, err)
	return k
}

func TestCommandDispatchesToDriver(t *testing.T) {
	k := newTestKernel(t, nil)

	var gotCmd trap.CommandNum
	var gotArg1, gotArg2 uintptr
	k.RegisterDriver(1, &StubDriver{
		CommandFn: func(cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
			gotCmd, gotArg1, gotArg2 = cmd, arg1, arg2
			return trap.ReturnCode(7)
		},
	})

	assert.Equal(t, trap.ReturnCode(7), k.Command(1, 2, 3, 4))
	assert.Equal(t, trap.CommandNum(2), gotCmd)
	assert.Equal(t, uintptr(3), gotArg1)
	assert.Equal(t, uintptr(4), gotArg2)
}

func TestUnknownDriver(t *testing.T) {
	k := newTestKernel(t, nil)

	assert.Equal(t, trap.NoDevice, k.Command(9, 0, 0, 0))
	assert.Equal(t, trap.NoDevice, k.Command1(9, 0, 0))
	assert.Equal(t, trap.NoDevice, k.Subscribe(9, 0, func(a, b, c, d uintptr) {}, 0))
	assert.Equal(t, trap.NoDevice, k.Allow(9, 0, new(byte), 1))
}

func TestCommand1LeaksPreviousArgumentRegister(t *testing.T) {
	k := newTestKernel(t, nil)

	var leaked uintptr
	k.RegisterDriver(1, &StubDriver{
		CommandFn: func(cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
			leaked = arg2
			return trap.Success
		},
	})

	// A full command stores into the second argument register; the
	// single-argument sequence leaves it untouched and the driver sees
	// the stale value.
	k.Command(1, 0, 1, 0xAB)
	k.Command1(1, 0, 7)
	assert.Equal(t, uintptr(0xAB), leaked)
}

func TestSubscribeDeliverYield(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(1, &StubDriver{})
	sys := syscalls.New(k)

	cb := &countingCallback{}
	sub, err := syscalls.Subscribe(sys, 1, 0, cb)
	require.NoError(t, err)

	require.NoError(t, k.Deliver(1, 0, 10, 20, 30))
	sys.Yield()

	require.Equal(t, 1, cb.calls)
	assert.Equal(t, [3]uintptr{10, 20, 30}, cb.args[0])

	assert.Equal(t, trap.Success, sub.Unsubscribe())
	assert.Error(t, k.Deliver(1, 0, 0, 0, 0), "cleared slot must not accept deliveries")
}

func TestClearedSlotDropsPendingEvents(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(1, &StubDriver{})
	sys := syscalls.New(k)

	cb := &countingCallback{}
	sub, err := syscalls.Subscribe(sys, 1, 0, cb)
	require.NoError(t, err)

	require.NoError(t, k.Deliver(1, 0, 1, 2, 3))
	require.Equal(t, 1, k.Pending())

	// Unregistering prevents future deliveries, including ones already
	// queued but not yet dispatched.
	assert.Equal(t, trap.Success, sub.Unsubscribe())
	assert.Zero(t, k.Pending())
	assert.Zero(t, cb.calls)
}

func TestStrictSlotsRejectDoubleSubscribe(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(1, &StubDriver{})

	fn := func(a, b, c, d uintptr) {}
	require.Equal(t, trap.Success, k.Subscribe(1, 0, fn, 0))
	assert.Equal(t, trap.Busy, k.Subscribe(1, 0, fn, 0))

	// Clearing frees the slot for a fresh registration.
	require.Equal(t, trap.Success, k.Subscribe(1, 0, nil, 0))
	assert.Equal(t, trap.Success, k.Subscribe(1, 0, fn, 0))
}

func TestOverlappingAllowRejected(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(2, &StubDriver{})
	sys := syscalls.New(k)
	buf := make([]byte, 10)

	shm, err := sys.Allow(2, 3, buf)
	require.NoError(t, err)

	// Same slot occupied, and a second region aliasing the shared
	// bytes, are both rejected while the handle is live.
	assert.Equal(t, trap.Busy, k.Allow(2, 3, &buf[0], 10))
	assert.Equal(t, trap.Invalid, k.Allow(2, 4, &buf[5], 4))

	got, rc := shm.Reclaim()
	require.Equal(t, trap.Success, rc)

	// Round trip: after reclaim the buffer carries no residual kernel
	// access and is usable for an unrelated allow.
	shm2, err := sys.Allow(2, 4, got)
	require.NoError(t, err)
	_, rc = shm2.Reclaim()
	assert.Equal(t, trap.Success, rc)
}

func TestDriverWritesAllowedRegion(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(2, &StubDriver{})
	sys := syscalls.New(k)

	shm, err := sys.Allow(2, 0, make([]byte, 4))
	require.NoError(t, err)

	region, ok := k.AllowedRegion(2, 0)
	require.True(t, ok)
	copy(region, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	got, rc := shm.Reclaim()
	require.Equal(t, trap.Success, rc)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)

	_, ok = k.AllowedRegion(2, 0)
	assert.False(t, ok, "reclaimed region must not remain visible to the driver")
}

func TestNestedDispatch(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(1, &StubDriver{})
	sys := syscalls.New(k)

	cb := &countingCallback{}
	cb.onCall = func(n int) {
		// The first invocation yields from inside the upcall body,
		// forcing re-entrant dispatch of the second event before the
		// outer invocation returns.
		if n == 1 {
			sys.Yield()
		}
	}

	sub, err := syscalls.Subscribe(sys, 1, 0, cb)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, k.Deliver(1, 0, 1, 0, 0))
	require.NoError(t, k.Deliver(1, 0, 2, 0, 0))

	sys.Yield()

	assert.Equal(t, 2, cb.calls)
	assert.Equal(t, 2, cb.maxDepth, "second event must dispatch nested inside the first")
	assert.Equal(t, [3]uintptr{1, 0, 0}, cb.args[0])
	assert.Equal(t, [3]uintptr{2, 0, 0}, cb.args[1])
}

func TestYieldBlocksUntilDelivery(t *testing.T) {
	k := newTestKernel(t, nil)
	k.RegisterDriver(1, &StubDriver{})
	sys := syscalls.New(k)

	cb := &countingCallback{}
	sub, err := syscalls.Subscribe(sys, 1, 0, cb)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = k.Deliver(1, 0, 5, 0, 0)
	}()

	sys.Yield()
	wg.Wait()

	assert.Equal(t, 1, cb.calls)
}

func TestDeliverRejectsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPendingEvents = 1
	k := newTestKernel(t, cfg)
	k.RegisterDriver(1, &StubDriver{})

	require.Equal(t, trap.Success, k.Subscribe(1, 0, func(a, b, c, d uintptr) {}, 0))
	require.NoError(t, k.Deliver(1, 0, 0, 0, 0))
	assert.Error(t, k.Deliver(1, 0, 0, 0, 0))
}
