// Package trap defines the raw kernel trap contract consumed by the
// syscall layer.
//
// A platform is anything that satisfies the Raw interface: five fixed
// entry points whose signatures mirror the kernel's trap-argument
// convention. Real targets implement Raw with an architecture-specific
// trap instruction sequence; the hosted platform implements it with an
// in-process kernel.
//
// Conventions:
//   - Driver, subscribe, allow and command numbers are opaque indices
//     interpreted only by the kernel. This layer never validates ranges.
//   - Subscribe and Allow return zero on success; any other value is a
//     kernel- or driver-defined error code.
//   - Command status codes are entirely driver-defined, including zero.
//   - Upcalls cross the boundary as a bare function plus one raw context
//     word. Registering a nil upcall with zero context clears a slot.
package trap
