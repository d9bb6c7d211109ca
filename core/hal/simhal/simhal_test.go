package simhal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeroos/zeroos/core/hal"
)

func TestSpawnUnknownProgramFails(t *testing.T) {
	h := New()
	_, err := h.Spawn(context.Background(), "x", []byte("nope"))
	require.ErrorIs(t, err, hal.ErrSpawnFailed)
}

func TestSpawnRunsProgramAndPostToDeliversBytes(t *testing.T) {
	h := New()
	received := make(chan []byte, 1)
	h.RegisterProgram("echoer", func(rt *IsolateRuntime) {
		b, ok := rt.RecvBytes(context.Background())
		if ok {
			received <- b
		}
	})

	hd, err := h.Spawn(context.Background(), "echoer", []byte("echoer"))
	require.NoError(t, err)
	require.True(t, h.IsAlive(hd))

	require.NoError(t, h.PostTo(context.Background(), hd, []byte("ping")))

	select {
	case b := <-received:
		require.Equal(t, []byte("ping"), b)
	case <-time.After(time.Second):
		t.Fatal("isolate never observed the posted bytes")
	}
}

func TestKillStopsIsAlive(t *testing.T) {
	h := New()
	h.RegisterProgram("blocker", func(rt *IsolateRuntime) {
		<-rt.Done()
	})
	hd, err := h.Spawn(context.Background(), "blocker", []byte("blocker"))
	require.NoError(t, err)

	require.NoError(t, h.Kill(context.Background(), hd))
	require.False(t, h.IsAlive(hd))
}

func TestIssueAsyncStorageRoundTrip(t *testing.T) {
	h := New()
	ctx := context.Background()

	_, err := h.IssueAsync(ctx, hal.KindStorageWrite, append([]byte("key\x00"), []byte("value")...))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, c := range h.PollCompletions() {
			if c.Kind == hal.KindStorageWrite && c.Status == hal.StatusOK {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	reqID, err := h.IssueAsync(ctx, hal.KindStorageRead, []byte("key"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, c := range h.PollCompletions() {
			if c.RequestID == reqID {
				require.Equal(t, hal.StatusOK, c.Status)
				require.Equal(t, []byte("value"), c.Data)
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
