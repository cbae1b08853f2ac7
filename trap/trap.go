package trap

// Kernel-side identifiers. Small unsigned indices selecting a driver and,
// within it, a subscription slot, buffer slot, or command.
type (
	DriverNum    uint32
	SubscribeNum uint32
	AllowNum     uint32
	CommandNum   uint32
)

// Upcall is the C-shaped callback signature the kernel invokes during a
// yield. The kernel transports only this function and the userdata word;
// it never sees a closure. The userdata word is returned unchanged on
// every invocation.
type Upcall func(arg1, arg2, arg3, userdata uintptr)

// Raw is the kernel trap interface. One implementation exists per
// supported target; all of them must be bit-exact with the kernel's
// trap-argument register convention.
//
// Yield blocks the calling context until the kernel has an event to
// deliver, then dispatches a pending upcall on the calling goroutine
// before returning. Upcalls only ever fire inside Yield.
type Raw interface {
	// Command issues an immediate, synchronous request to a driver.
	// The returned status is driver-defined and passed through as-is.
	Command(driver DriverNum, cmd CommandNum, arg1, arg2 uintptr) ReturnCode

	// Command1 is the reduced single-argument command sequence. The
	// second argument register keeps its prior contents, which the
	// called driver can observe.
	Command1(driver DriverNum, cmd CommandNum, arg uintptr) ReturnCode

	// Subscribe registers fn and userdata for a driver's subscription
	// slot. A nil fn with zero userdata clears the slot.
	Subscribe(driver DriverNum, sub SubscribeNum, fn Upcall, userdata uintptr) ReturnCode

	// Allow shares the length bytes at ptr with a driver. A nil ptr
	// with zero length revokes the driver's access to the slot.
	Allow(driver DriverNum, num AllowNum, ptr *byte, length int) ReturnCode

	// Yield suspends until the kernel delivers a pending event.
	Yield()
}
