package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	require.NoError(t, err)

	var (
		ran       atomic.Int32
		completed atomic.Int32
		failed    atomic.Int32
		wg        sync.WaitGroup
	)
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, js.Submit(Job{
			Name: "count",
			Run: func() error {
				ran.Add(1)
				if i%5 == 0 {
					return boom
				}
				return nil
			},
			OnComplete: func() {
				completed.Add(1)
				wg.Done()
			},
			OnFailure: func(err error) {
				assert.ErrorIs(t, err, boom)
				failed.Add(1)
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), ran.Load())
	assert.Equal(t, int32(16), completed.Load())
	assert.Equal(t, int32(4), failed.Load())
	assert.NoError(t, js.Shutdown())
}

func TestJobSystemShutdownDrainsQueue(t *testing.T) {
	js, err := NewJobSystem(1, 8)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, js.Submit(Job{Name: "drain", Run: func() error {
			ran.Add(1)
			return nil
		}}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(8), ran.Load())

	assert.NoError(t, js.Shutdown(), "shutdown twice")
	assert.ErrorIs(t, js.Submit(Job{Name: "late", Run: func() error { return nil }}), ErrJobSystemClosed)
}

func TestJobSystemSubmitWithoutRun(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	assert.Error(t, js.Submit(Job{Name: "empty"}))
}
