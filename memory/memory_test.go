package memory

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Semihalf/libtock-go/internal/traptest"
	"github.com/Semihalf/libtock-go/trap"
)

func TestReadWriteBytes(t *testing.T) {
	rec := &traptest.Recorder{}
	buf := make([]byte, 8)
	shm := NewSharedMemory(rec, 2, 3, buf, nil)

	assert.Equal(t, 8, shm.Len())
	assert.Equal(t, 5, shm.WriteBytes([]byte("hello")))

	dst := make([]byte, 5)
	assert.Equal(t, 5, shm.ReadBytes(dst))
	assert.Equal(t, []byte("hello"), dst)

	got, rc := shm.Reclaim()
	assert.Equal(t, trap.Success, rc)
	assert.Equal(t, []byte("hello"), got[:5])

	// Consumed handle: accessors go quiet instead of touching a buffer
	// the process now owns again.
	assert.Zero(t, shm.Len())
	assert.Zero(t, shm.ReadBytes(dst))
	assert.Zero(t, shm.WriteBytes(dst))
}

func TestReclaimIssuesSingleRevocation(t *testing.T) {
	rec := &traptest.Recorder{}
	buf := make([]byte, 4)
	shm := NewSharedMemory(rec, 2, 3, buf, nil)

	got, rc := shm.Reclaim()
	assert.Equal(t, trap.Success, rc)
	assert.Same(t, &buf[0], &got[0])
	require.Len(t, rec.Reclaims(2, 3), 1)

	got, rc = shm.Reclaim()
	assert.Nil(t, got)
	assert.Equal(t, trap.Success, rc)
	assert.Len(t, rec.Reclaims(2, 3), 1)
}

func TestReclaimFailureStatusSurfaced(t *testing.T) {
	rec := &traptest.Recorder{
		AllowFn: func(traptest.Call) trap.ReturnCode { return trap.Fail },
	}
	shm := NewSharedMemory(rec, 2, 3, make([]byte, 4), nil)

	got, rc := shm.Reclaim()
	assert.Equal(t, trap.Fail, rc)
	assert.NotNil(t, got)
}

func TestReclaimOnCollection(t *testing.T) {
	rec := &traptest.Recorder{}

	func() {
		_ = NewSharedMemory(rec, 2, 3, make([]byte, 4), nil)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return len(rec.Reclaims(2, 3)) == 1
	}, 5*time.Second, 10*time.Millisecond,
		"dropped shared memory handle must still revoke kernel access")
}
