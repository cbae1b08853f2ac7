package trap

import "strconv"

// ReturnCode is the kernel's signed status value. Zero means success for
// subscribe and allow; every other value is an error code meaningful
// only to the specific driver or call. A non-zero ReturnCode is usable
// directly as a Go error, in the style of syscall.Errno.
type ReturnCode int

// Well-known kernel status codes. Drivers are free to return values
// outside this set; callers must treat unknown codes as opaque.
const (
	Success     ReturnCode = 0
	Fail        ReturnCode = -1
	Busy        ReturnCode = -2
	Already     ReturnCode = -3
	Off         ReturnCode = -4
	Reserve     ReturnCode = -5
	Invalid     ReturnCode = -6
	Size        ReturnCode = -7
	Cancel      ReturnCode = -8
	NoMem       ReturnCode = -9
	NoSupport   ReturnCode = -10
	NoDevice    ReturnCode = -11
	Uninstalled ReturnCode = -12
)

// Ok reports whether the code signals success.
func (rc ReturnCode) Ok() bool { return rc == Success }

// Error implements the error interface for non-zero codes.
func (rc ReturnCode) Error() string {
	switch rc {
	case Success:
		return "success"
	case Fail:
		return "unspecified failure"
	case Busy:
		return "device or slot busy"
	case Already:
		return "operation already in progress"
	case Off:
		return "device off"
	case Reserve:
		return "reservation required"
	case Invalid:
		return "invalid argument"
	case Size:
		return "size exceeded"
	case Cancel:
		return "operation cancelled"
	case NoMem:
		return "out of memory"
	case NoSupport:
		return "operation not supported"
	case NoDevice:
		return "no such device"
	case Uninstalled:
		return "device not installed"
	default:
		return "kernel status " + strconv.Itoa(int(rc))
	}
}
