// Package syscalls is the typed entry point for the four kernel verbs.
//
// It converts ergonomic arguments into raw trap calls against a
// trap.Raw platform, interprets the zero/non-zero status convention for
// subscribe and allow, and hands ownership of the two resources those
// verbs create to their handle types:
//   - callback.Subscription for a registered upcall slot
//   - memory.SharedMemory for a buffer shared with a driver
//
// Command status codes are passed through uninterpreted: zero is not
// guaranteed to mean success for every command, so interpretation
// belongs to the caller.
//
// Example:
//
//	sys := syscalls.New(platform)
//	sub, err := syscalls.Subscribe(sys, 1, 0, counter)
//	if err != nil {
//		return err
//	}
//	defer sub.Unsubscribe()
//	sys.Yield()
package syscalls
