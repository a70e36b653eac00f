package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	mu    sync.Mutex
	calls []int
	n     int64
	err   error
}

func (f *fakeDeleter) DeleteInactive(_ context.Context, days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, days)
	return f.n, f.err
}

func (f *fakeDeleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestNewCleanupRejectsBadInput(t *testing.T) {
	_, err := NewCleanup(&fakeDeleter{}, "", 30)
	require.Error(t, err)
	_, err = NewCleanup(&fakeDeleter{}, "not a schedule", 30)
	require.Error(t, err)
	_, err = NewCleanup(&fakeDeleter{}, "0 0 3 * * *", -1)
	require.Error(t, err)
}

func TestRunOncePassesDays(t *testing.T) {
	d := &fakeDeleter{n: 4}
	c, err := NewCleanup(d, "0 0 3 * * *", 30)
	require.NoError(t, err)

	n, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.Equal(t, []int{30}, d.calls)
}

func TestRunOnceReturnsStoreError(t *testing.T) {
	d := &fakeDeleter{n: 3, err: errors.New("db down")}
	c, err := NewCleanup(d, "0 0 3 * * *", 7)
	require.NoError(t, err)

	n, err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Zero(t, n)
	require.Equal(t, []int{7}, d.calls)
}

func TestScheduleFires(t *testing.T) {
	d := &fakeDeleter{}
	c, err := NewCleanup(d, "* * * * * *", 1)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return d.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
