package commit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendAndRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.db")
	log, err := Open(path)
	require.NoError(t, err)
	defer log.Close()

	entries, err := log.Append(100, []Commit{
		NewProcessCreated(1, "init"),
		NewEndpointCreated(1, 1),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var zero Hash256
	require.Equal(t, zero, entries[0].PrevHash)
	require.NotEqual(t, zero, entries[0].EntryHash)
	require.Equal(t, entries[0].EntryHash, entries[1].PrevHash)

	seq, ok := log.LastSeq()
	require.True(t, ok)
	require.Equal(t, entries[1].Seq, seq)

	var seen []Kind
	require.NoError(t, log.All(func(e Entry) error {
		seen = append(seen, e.Commit.Kind)
		return nil
	}))
	require.Equal(t, []Kind{KindProcessCreated, KindEndpointCreated}, seen)
}

func TestLogReopenRecoversChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.db")
	log, err := Open(path)
	require.NoError(t, err)

	_, err = log.Append(1, []Commit{NewProcessCreated(1, "init")})
	require.NoError(t, err)
	seqBefore, _ := log.LastSeq()
	require.NoError(t, log.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	seqAfter, ok := reopened.LastSeq()
	require.True(t, ok)
	require.Equal(t, seqBefore, seqAfter)

	_, err = reopened.Append(2, []Commit{NewProcessCreated(2, "second")})
	require.NoError(t, err)

	var count int
	require.NoError(t, reopened.All(func(Entry) error { count++; return nil }))
	require.Equal(t, 2, count)
}
