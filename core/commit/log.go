package commit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/zeroos/zeroos/pkg/ids"
)

var (
	bucketCommits = []byte("commits")
	bucketMeta    = []byte("meta")

	keyMagic     = []byte("magic")
	keyVersion   = []byte("version")
	keyLastSeq   = []byte("last_seq")
	keyLastHash  = []byte("last_hash")
	keyEntryCnt  = []byte("entry_count")
)

const (
	magic          = "ZOSC"
	currentVersion = 1
)

// Entry is one CommitLog record: the commit plus the chain metadata that
// anchors it (spec.md §3, §6).
type Entry struct {
	Seq        ids.CommitSeq
	PrevHash   Hash256
	PayloadTs  uint64
	EntryHash  Hash256
	Commit     Commit
}

// Log is the append-only, hash-chained, durable sequence of commits —
// the system's source of truth. It is built on go.etcd.io/bbolt, adapting
// the teacher's core/snapshots/storage bolt-transaction pattern: one
// bucket holding framed records keyed by big-endian commit_seq, one bucket
// holding the file header (magic/version/last seq/last hash). No entry
// count is written to the header; keyEntryCnt is declared but unused.
//
// Log serializes its own appends with a mutex in addition to bbolt's own
// single-writer transaction semantics, because an Axiom syscall appends a
// batch of commits as one logical group and the batch itself must be
// atomic from the chain's point of view — not just each individual put.
type Log struct {
	mu   sync.Mutex
	db   *bolt.DB
	last Entry
	has  bool
}

// Open opens or creates the bbolt-backed CommitLog at path, recovers the
// chain (truncating any trailing entry that fails hash verification — a
// defensive re-check on top of bbolt's own transactional durability), and
// returns a Log positioned at the last valid entry.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("open commit log: %w", err)
	}
	l := &Log{db: db}
	if err := l.initAndRecover(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) initAndRecover() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		commits, err := tx.CreateBucketIfNotExists(bucketCommits)
		if err != nil {
			return err
		}
		if meta.Get(keyMagic) == nil {
			meta.Put(keyMagic, []byte(magic))
			var vb [4]byte
			binary.BigEndian.PutUint32(vb[:], currentVersion)
			meta.Put(keyVersion, vb[:])
		}

		c := commits.Cursor()
		var prevHash Hash256
		var lastSeq ids.CommitSeq
		var lastEntry Entry
		haveAny := false
		for k, v := c.First(); k != nil; k, v = c.Next() {
			seq := ids.CommitSeq(binary.BigEndian.Uint64(k))
			entry, perr := decodeFramed(v)
			if perr != nil || entry.PrevHash != prevHash {
				// A corrupt or discontinuous trailing record: truncate
				// from here onward and stop recovering further entries.
				if err := truncateFrom(commits, k); err != nil {
					return err
				}
				break
			}
			prevHash = entry.EntryHash
			lastSeq = seq
			lastEntry = entry
			haveAny = true
		}
		if haveAny {
			l.last = lastEntry
			l.has = true
			var sb [8]byte
			binary.BigEndian.PutUint64(sb[:], uint64(lastSeq))
			meta.Put(keyLastSeq, sb[:])
			meta.Put(keyLastHash, lastEntry.EntryHash[:])
		}
		return nil
	})
}

func truncateFrom(b *bolt.Bucket, fromKey []byte) error {
	c := b.Cursor()
	for k, _ := c.Seek(fromKey); k != nil; k, _ = c.Next() {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Append appends commits as a single atomic batch, extending the hash
// chain once per commit in emission order, and persists the batch as one
// bbolt transaction. It returns the appended entries.
func (l *Log) Append(tsNs uint64, commits []Commit) ([]Entry, error) {
	if len(commits) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(commits))
	prevHash := l.last.EntryHash
	nextSeq := ids.CommitSeq(0)
	if l.has {
		nextSeq = l.last.Seq + 1
	}

	for _, c := range commits {
		eh := ChainHash(prevHash, tsNs, c)
		entries = append(entries, Entry{Seq: nextSeq, PrevHash: prevHash, PayloadTs: tsNs, EntryHash: eh, Commit: c})
		prevHash = eh
		nextSeq++
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommits)
		meta := tx.Bucket(bucketMeta)
		for _, e := range entries {
			k := make([]byte, 8)
			binary.BigEndian.PutUint64(k, uint64(e.Seq))
			if err := b.Put(k, encodeFramed(e)); err != nil {
				return err
			}
		}
		last := entries[len(entries)-1]
		var sb [8]byte
		binary.BigEndian.PutUint64(sb[:], uint64(last.Seq))
		meta.Put(keyLastSeq, sb[:])
		meta.Put(keyLastHash, last.EntryHash[:])
		return nil
	})
	if err != nil {
		// Per spec.md §4.D: a CommitLog append failure is unrecoverable
		// and forces a fatal shutdown — the commit log is the source of
		// truth and a torn append would desynchronize it from kernel
		// state. Callers (Axiom) are expected to treat this error as
		// fatal rather than retry.
		return nil, fmt.Errorf("commit log append failed (fatal): %w", err)
	}

	l.last = entries[len(entries)-1]
	l.has = true
	return entries, nil
}

// LastSeq returns the sequence of the most recently appended entry, or
// (0, false) if the log is empty.
func (l *Log) LastSeq() (ids.CommitSeq, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last.Seq, l.has
}

// Range calls fn for every entry with Seq in [from, to], in order. fn
// returning an error stops iteration and is returned to the caller.
func (l *Log) Range(from, to ids.CommitSeq, fn func(Entry) error) error {
	return l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommits)
		c := b.Cursor()
		var fk [8]byte
		binary.BigEndian.PutUint64(fk[:], uint64(from))
		for k, v := c.Seek(fk[:]); k != nil; k, v = c.Next() {
			seq := ids.CommitSeq(binary.BigEndian.Uint64(k))
			if seq > to {
				break
			}
			e, err := decodeFramed(v)
			if err != nil {
				return err
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// All replays the entire log in order.
func (l *Log) All(fn func(Entry) error) error {
	return l.Range(0, ^ids.CommitSeq(0), fn)
}

// Close closes the underlying bbolt database.
func (l *Log) Close() error { return l.db.Close() }

// encodeFramed renders e as the on-disk framed record from spec.md §6:
// [u32 len][u32 type][u64 seq][u64 ts][32B prev_hash][payload][32B entry_hash].
// Framing the chain metadata into the value bytes (rather than relying
// solely on bbolt's own file format) keeps the CommitLog self-verifying:
// a recovery tool could re-derive the chain from the raw value bytes alone.
func encodeFramed(e Entry) []byte {
	payload := Encode(e.Commit)
	var buf bytes.Buffer
	putU32(&buf, uint32(len(payload)))
	putU32(&buf, uint32(e.Commit.Kind))
	putU64(&buf, uint64(e.Seq))
	putU64(&buf, e.PayloadTs)
	buf.Write(e.PrevHash[:])
	buf.Write(payload)
	buf.Write(e.EntryHash[:])
	return buf.Bytes()
}

func decodeFramed(b []byte) (Entry, error) {
	const fixedHeader = 4 + 4 + 8 + 8 + 32
	if len(b) < fixedHeader+32 {
		return Entry{}, fmt.Errorf("framed record too short")
	}
	r := bytes.NewReader(b)
	var length uint32
	var kind uint32
	var seq, ts uint64
	binary.Read(r, binary.BigEndian, &length)
	binary.Read(r, binary.BigEndian, &kind)
	binary.Read(r, binary.BigEndian, &seq)
	binary.Read(r, binary.BigEndian, &ts)
	var prevHash Hash256
	r.Read(prevHash[:])

	if len(b) != fixedHeader+int(length)+32 {
		return Entry{}, fmt.Errorf("framed record length mismatch")
	}
	payload := make([]byte, length)
	r.Read(payload)
	var entryHash Hash256
	r.Read(entryHash[:])

	c, err := decodePayload(Kind(kind), payload)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{Seq: ids.CommitSeq(seq), PrevHash: prevHash, PayloadTs: ts, EntryHash: entryHash, Commit: c}
	if ChainHash(prevHash, ts, c) != entryHash {
		return Entry{}, fmt.Errorf("entry hash mismatch at seq %d", seq)
	}
	return e, nil
}
