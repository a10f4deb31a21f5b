package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	project string
	calls   atomic.Int32
	skip    bool
	err     error
}

func (c *countingTarget) Project() string { return c.project }

func (c *countingTarget) Refresh(context.Context) (bool, error) {
	c.calls.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return !c.skip, nil
}

func TestRunOnce(t *testing.T) {
	s := NewService("@every 1h", nil)
	ok := &countingTarget{project: "a"}
	skipped := &countingTarget{project: "b", skip: true}
	failing := &countingTarget{project: "c", err: errors.New("offline")}
	s.Add(ok)
	s.Add(skipped)
	s.Add(failing)

	require.Equal(t, 1, s.RunOnce(context.Background()))
	require.EqualValues(t, 1, ok.calls.Load())
	require.EqualValues(t, 1, skipped.calls.Load())
	require.EqualValues(t, 1, failing.calls.Load())
}

func TestStartRunsOnSchedule(t *testing.T) {
	s := NewService("@every 1s", nil)
	target := &countingTarget{project: "a"}
	s.Add(target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()

	seen := target.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, seen, target.calls.Load(), "no refreshes after Stop")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewService("whenever", nil)
	require.Error(t, s.Start(context.Background()))
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewService("@every 1h", nil)
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
