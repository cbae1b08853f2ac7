// Package hosted provides an in-process kernel implementing trap.Raw.
//
// It is the platform used on non-embedded targets: tests, simulation and
// tooling. The kernel keeps the bookkeeping a real kernel would keep on
// the other side of the trap boundary:
//
//   - a driver registry keyed by driver number
//   - live upcall registrations per (driver, subscribe) slot
//   - currently allowed buffer regions per (driver, allow) slot, with
//     overlapping regions rejected while a slot is strict
//   - a bounded queue of pending upcall deliveries
//
// Yield blocks until an event is pending, then dispatches exactly one
// upcall on the yielding goroutine. An upcall body that yields again
// observes nested dispatch, matching the cooperative scheduling model of
// the real kernel.
//
// Command1 models the leaked second argument register: the driver sees
// whatever second argument word the previous full Command left behind.
package hosted
