// Package traptest provides a recording trap.Raw double for tests.
package traptest

import (
	"sync"

	"github.com/Semihalf/libtock-go/trap"
)

// Call records one trap with whichever fields the verb populates.
type Call struct {
	Verb     string // "command", "command1", "subscribe", "allow", "yield"
	Driver   trap.DriverNum
	Cmd      trap.CommandNum
	Sub      trap.SubscribeNum
	Num      trap.AllowNum
	Arg1     uintptr
	Arg2     uintptr
	Fn       trap.Upcall
	Userdata uintptr
	Ptr      *byte
	Len      int
}

// Recorder implements trap.Raw, recording every call. Handle release can
// happen on the runtime's cleanup goroutine, so recording is guarded by
// a mutex. Return statuses are scripted through the optional hook funcs;
// a nil hook returns zero.
//
// The testify mock package is not used here because subscribe carries a
// function-valued argument, which mock.Mock cannot match on.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	CommandFn   func(c Call) trap.ReturnCode
	SubscribeFn func(c Call) trap.ReturnCode
	AllowFn     func(c Call) trap.ReturnCode
	YieldFn     func()
}

var _ trap.Raw = (*Recorder)(nil)

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns a snapshot of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) Command(driver trap.DriverNum, cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
	c := Call{Verb: "command", Driver: driver, Cmd: cmd, Arg1: arg1, Arg2: arg2}
	r.record(c)
	if r.CommandFn != nil {
		return r.CommandFn(c)
	}
	return trap.Success
}

func (r *Recorder) Command1(driver trap.DriverNum, cmd trap.CommandNum, arg uintptr) trap.ReturnCode {
	c := Call{Verb: "command1", Driver: driver, Cmd: cmd, Arg1: arg}
	r.record(c)
	if r.CommandFn != nil {
		return r.CommandFn(c)
	}
	return trap.Success
}

func (r *Recorder) Subscribe(driver trap.DriverNum, sub trap.SubscribeNum, fn trap.Upcall, userdata uintptr) trap.ReturnCode {
	c := Call{Verb: "subscribe", Driver: driver, Sub: sub, Fn: fn, Userdata: userdata}
	r.record(c)
	if r.SubscribeFn != nil {
		return r.SubscribeFn(c)
	}
	return trap.Success
}

func (r *Recorder) Allow(driver trap.DriverNum, num trap.AllowNum, ptr *byte, length int) trap.ReturnCode {
	c := Call{Verb: "allow", Driver: driver, Num: num, Ptr: ptr, Len: length}
	r.record(c)
	if r.AllowFn != nil {
		return r.AllowFn(c)
	}
	return trap.Success
}

func (r *Recorder) Yield() {
	r.record(Call{Verb: "yield"})
	if r.YieldFn != nil {
		r.YieldFn()
	}
}

// ClearSlots returns the recorded clear-slot registrations (nil upcall,
// zero context) for the given pair.
func (r *Recorder) ClearSlots(driver trap.DriverNum, sub trap.SubscribeNum) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Verb == "subscribe" && c.Driver == driver && c.Sub == sub && c.Fn == nil {
			out = append(out, c)
		}
	}
	return out
}

// Reclaims returns the recorded zero-length allow registrations for the
// given pair.
func (r *Recorder) Reclaims(driver trap.DriverNum, num trap.AllowNum) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Verb == "allow" && c.Driver == driver && c.Num == num && c.Ptr == nil && c.Len == 0 {
			out = append(out, c)
		}
	}
	return out
}
