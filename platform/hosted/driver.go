package hosted

import "github.com/Semihalf/libtock-go/trap"

// Driver is the kernel-side contract for a hosted driver. The kernel
// handles subscribe and allow bookkeeping itself; drivers only see
// commands. Drivers deliver events back to the process through
// Kernel.Deliver and read or fill shared buffers through
// Kernel.AllowedRegion.
type Driver interface {
	Command(cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode
}

// StubDriver is a scriptable Driver for tests and simulation. A nil
// CommandFn accepts every command with a zero status.
type StubDriver struct {
	CommandFn func(cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode
}

func (d *StubDriver) Command(cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
	if d.CommandFn != nil {
		return d.CommandFn(cmd, arg1, arg2)
	}
	return trap.Success
}
