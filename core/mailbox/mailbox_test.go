package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxRoundTrip(t *testing.T) {
	mb := New()
	require.Equal(t, Idle, mb.Status())

	mb.SubmitSyscall(7, [4]uint32{1, 2, 3, 4}, []byte("hello"))
	require.Equal(t, Pending, mb.Status())

	num, args, data, ok := mb.TryTakePending()
	require.True(t, ok)
	require.Equal(t, uint32(7), num)
	require.Equal(t, [4]uint32{1, 2, 3, 4}, args)
	require.Equal(t, []byte("hello"), data)

	// STATUS is still Pending until the supervisor explicitly completes
	// it; TryTakePending does not itself consume the request.
	require.Equal(t, Pending, mb.Status())

	mb.CompleteSyscall(0, []byte("world"))
	require.Equal(t, Ready, mb.Status())

	result, respData, ok := mb.TryTakeReady()
	require.True(t, ok)
	require.Equal(t, int32(0), result)
	require.Equal(t, []byte("world"), respData)
	require.Equal(t, Idle, mb.Status())
}

func TestMailboxTryTakePendingWhenIdle(t *testing.T) {
	mb := New()
	_, _, _, ok := mb.TryTakePending()
	require.False(t, ok)
}

func TestMailboxTryTakeReadyWhenNotReady(t *testing.T) {
	mb := New()
	_, _, ok := mb.TryTakeReady()
	require.False(t, ok)
}

func TestMailboxSubmitSyscallPanicsWhenNotIdle(t *testing.T) {
	mb := New()
	mb.SubmitSyscall(1, [4]uint32{}, nil)
	require.Panics(t, func() {
		mb.SubmitSyscall(2, [4]uint32{}, nil)
	})
}
