// Package memory holds the owned handle for a buffer whose write
// visibility has been transferred to a kernel driver.
package memory

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/Semihalf/libtock-go/trap"
)

// SharedMemory owns the fact that the kernel currently has write access
// to one buffer for a (driver, allow slot) pair. It is created only by a
// successful allow. While the handle is live the process must not touch
// the buffer through any other path; ReadBytes and WriteBytes are the
// sanctioned accessors. At most one live handle may exist per slot; the
// handle must not be copied.
//
// Releasing the handle re-allows the slot with a nil, zero-length buffer,
// which the driver interprets as "relinquish access". Release happens
// either explicitly via Reclaim or unconditionally when the handle
// becomes unreachable.
type SharedMemory struct {
	st      *allowState
	cleanup runtime.Cleanup
}

type allowState struct {
	raw    trap.Raw
	driver trap.DriverNum
	num    trap.AllowNum
	buf    []byte
	log    *zap.Logger
}

// NewSharedMemory wraps a buffer transfer the kernel has already
// accepted. Called by the syscall layer on a zero allow status; not
// intended for direct use.
func NewSharedMemory(raw trap.Raw, driver trap.DriverNum, num trap.AllowNum, buf []byte, log *zap.Logger) *SharedMemory {
	if log == nil {
		log = zap.NewNop()
	}
	st := &allowState{raw: raw, driver: driver, num: num, buf: buf, log: log}
	m := &SharedMemory{st: st}
	m.cleanup = runtime.AddCleanup(m, reclaimAllowState, st)
	return m
}

// Len returns the length of the shared region, or zero once reclaimed.
func (m *SharedMemory) Len() int {
	if m.st == nil {
		return 0
	}
	return len(m.st.buf)
}

// ReadBytes copies from the shared region into dst and returns the
// number of bytes copied. Returns zero once the handle is consumed.
func (m *SharedMemory) ReadBytes(dst []byte) int {
	if m.st == nil {
		return 0
	}
	return copy(dst, m.st.buf)
}

// WriteBytes copies src into the shared region and returns the number of
// bytes copied. Returns zero once the handle is consumed.
func (m *SharedMemory) WriteBytes(src []byte) int {
	if m.st == nil {
		return 0
	}
	return copy(m.st.buf, src)
}

// Reclaim revokes the driver's access and consumes the handle, returning
// the original buffer, which is safe for process use again. The status
// is the reclaim trap's own result; on a non-zero status the kernel-side
// slot is in an unknown state, but the handle is consumed and the buffer
// returned either way. Calling Reclaim on a consumed handle returns nil
// and success.
func (m *SharedMemory) Reclaim() ([]byte, trap.ReturnCode) {
	st := m.st
	if st == nil {
		return nil, trap.Success
	}
	m.st = nil
	m.cleanup.Stop()
	return st.buf, st.revoke()
}

// reclaimAllowState is the collection-time release path. The buffer is
// unreachable at this point, so only the revocation matters; a failed
// reclaim is logged and swallowed.
func reclaimAllowState(st *allowState) {
	if rc := st.revoke(); !rc.Ok() {
		st.log.Warn("reclaim trap failed during shared memory release",
			zap.Uint32("driver", uint32(st.driver)),
			zap.Uint32("allow", uint32(st.num)),
			zap.Int("status", int(rc)),
		)
	}
}

func (st *allowState) revoke() trap.ReturnCode {
	return st.raw.Allow(st.driver, st.num, nil, 0)
}
