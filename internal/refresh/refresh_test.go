package refresh

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/krxscan/pkg/logger"
)

func TestTryRunOnce_RunsAndMarksDone(t *testing.T) {
	j := New(t.TempDir(), logger.NewNop())

	done := make(chan struct{})
	started := j.TryRunOnce(func() error {
		defer close(done)
		return nil
	})
	require.True(t, started)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh fn never ran")
	}

	// done 마커는 비동기로 쓰인다
	require.Eventually(t, func() bool {
		return j.Today() == Done
	}, 5*time.Second, 10*time.Millisecond)

	// 완료 후 재시도는 시작되지 않는다
	assert.False(t, j.TryRunOnce(func() error { return nil }))
}

func TestTryRunOnce_LockExcludesConcurrentCallers(t *testing.T) {
	j := New(t.TempDir(), logger.NewNop())

	var runs int32
	release := make(chan struct{})

	first := j.TryRunOnce(func() error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	})
	require.True(t, first)

	// 첫 번째가 잠금을 쥔 동안 경쟁자는 전부 skip
	for i := 0; i < 5; i++ {
		assert.False(t, j.TryRunOnce(func() error {
			atomic.AddInt32(&runs, 1)
			return nil
		}))
	}
	close(release)

	require.Eventually(t, func() bool {
		return j.Today() == Done
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestTryRunOnce_FailureLeavesNoDoneMarker(t *testing.T) {
	j := New(t.TempDir(), logger.NewNop())

	done := make(chan struct{})
	started := j.TryRunOnce(func() error {
		defer close(done)
		return os.ErrPermission
	})
	require.True(t, started)
	<-done

	// 실패는 마커를 남기지 않으므로 다음 트리거가 재시도한다
	require.Eventually(t, func() bool {
		return j.TryRunOnce(func() error { return nil })
	}, 5*time.Second, 10*time.Millisecond)
}
