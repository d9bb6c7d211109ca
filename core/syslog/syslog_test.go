package syslog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRequestResponseRoundTrip(t *testing.T) {
	l := New(4)
	seq := l.LogRequest(1, 1, 7, [4]uint32{1, 2, 3, 4})
	l.LogResponse(seq, 0, "")

	recent := l.Recent(0)
	require.Len(t, recent, 1)
	require.Equal(t, seq, recent[0].Seq)
	require.True(t, recent[0].Responded)
	require.Equal(t, int32(0), recent[0].Result)
}

func TestLogEvictsOldestOnWraparound(t *testing.T) {
	l := New(2)
	s1 := l.LogRequest(1, 1, 1, [4]uint32{})
	l.LogRequest(2, 1, 2, [4]uint32{})
	l.LogRequest(3, 1, 3, [4]uint32{})

	recent := l.Recent(0)
	require.Len(t, recent, 2)
	for _, e := range recent {
		require.NotEqual(t, s1, e.Seq, "oldest entry should have been evicted")
	}
}

func TestLogResponseAfterEvictionIsNoop(t *testing.T) {
	l := New(1)
	s1 := l.LogRequest(1, 1, 1, [4]uint32{})
	l.LogRequest(2, 1, 2, [4]uint32{})

	require.NotPanics(t, func() {
		l.LogResponse(s1, 0, "")
	})
}
