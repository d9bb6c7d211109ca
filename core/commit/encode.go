package commit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/pkg/ids"
)

// Encode serializes c into a stable, explicit binary form: a Kind tag
// followed by its fields in declaration order, each as a fixed-width
// big-endian integer or a length-prefixed byte string. This is
// deliberately not reflection- or gob-based so that payload_hash is
// reproducible across Go versions and architectures, which a generic
// encoder does not guarantee.
func Encode(c Commit) []byte {
	var buf bytes.Buffer
	putU16(&buf, uint16(c.Kind))

	switch c.Kind {
	case KindProcessCreated:
		putU64(&buf, uint64(c.ProcessCreated.Pid))
		putString(&buf, c.ProcessCreated.Name)
	case KindProcessTerminated:
		putU64(&buf, uint64(c.ProcessTerminated.Pid))
		putI32(&buf, c.ProcessTerminated.ExitCode)
	case KindProcessFaulted:
		putU64(&buf, uint64(c.ProcessFaulted.Pid))
		putString(&buf, c.ProcessFaulted.Reason)
	case KindProcessReaped:
		putU64(&buf, uint64(c.ProcessReaped.Pid))
	case KindEndpointCreated:
		putU64(&buf, uint64(c.EndpointCreated.Endpoint))
		putU64(&buf, uint64(c.EndpointCreated.Owner))
	case KindEndpointClosed:
		putU64(&buf, uint64(c.EndpointClosed.Endpoint))
	case KindCapabilityInserted:
		ci := c.CapabilityInserted
		putU64(&buf, uint64(ci.Pid))
		putU32(&buf, uint32(ci.Slot))
		putU8(&buf, uint8(ci.ObjectType))
		putU64(&buf, ci.ObjectId)
		putU8(&buf, uint8(ci.Perms))
		putU64(&buf, ci.Generation)
	case KindCapabilityRevoked:
		cr := c.CapabilityRevoked
		putU64(&buf, uint64(cr.Pid))
		putU32(&buf, uint32(cr.Slot))
	case KindMessageSent:
		ms := c.MessageSent
		putU64(&buf, uint64(ms.From))
		putU64(&buf, uint64(ms.ToEp))
		putU32(&buf, ms.Tag)
		putU32(&buf, ms.Size)
	case KindMessageDelivered:
		md := c.MessageDelivered
		putU64(&buf, uint64(md.Endpoint))
		putU64(&buf, uint64(md.To))
		putU32(&buf, md.Tag)
	case KindMessageRejected:
		mr := c.MessageRejected
		putU64(&buf, uint64(mr.From))
		putU64(&buf, uint64(mr.ToEp))
		putString(&buf, mr.Reason)
	case KindCallTimedOut:
		putU64(&buf, uint64(c.CallTimedOut.Pid))
	}
	return buf.Bytes()
}

func putU8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func putU16(buf *bytes.Buffer, v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); buf.Write(b[:]) }
func putU32(buf *bytes.Buffer, v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); buf.Write(b[:]) }
func putU64(buf *bytes.Buffer, v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); buf.Write(b[:]) }
func putI32(buf *bytes.Buffer, v int32)  { putU32(buf, uint32(v)) }

func putString(buf *bytes.Buffer, s string) {
	putU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// decodePayload is the inverse of Encode's per-kind field writer, used by
// the CommitLog when replaying or recovering from disk.
func decodePayload(kind Kind, payload []byte) (Commit, error) {
	r := bytes.NewReader(payload)

	u8 := func() uint8 { var b [1]byte; r.Read(b[:]); return b[0] }
	u32 := func() uint32 { var b [4]byte; r.Read(b[:]); return binary.BigEndian.Uint32(b[:]) }
	u64 := func() uint64 { var b [8]byte; r.Read(b[:]); return binary.BigEndian.Uint64(b[:]) }
	str := func() string { n := u32(); b := make([]byte, n); r.Read(b); return string(b) }

	switch kind {
	case KindProcessCreated:
		pid := u64()
		name := str()
		return NewProcessCreated(ids.ProcessId(pid), name), nil
	case KindProcessTerminated:
		pid := u64()
		exit := int32(u32())
		return NewProcessTerminated(ids.ProcessId(pid), exit), nil
	case KindProcessFaulted:
		pid := u64()
		reason := str()
		return NewProcessFaulted(ids.ProcessId(pid), reason), nil
	case KindProcessReaped:
		return NewProcessReaped(ids.ProcessId(u64())), nil
	case KindEndpointCreated:
		ep := u64()
		owner := u64()
		return NewEndpointCreated(ids.EndpointId(ep), ids.ProcessId(owner)), nil
	case KindEndpointClosed:
		return NewEndpointClosed(ids.EndpointId(u64())), nil
	case KindCapabilityInserted:
		pid := u64()
		slot := u32()
		ot := u8()
		oid := u64()
		perms := u8()
		gen := u64()
		return NewCapabilityInserted(ids.ProcessId(pid), ids.CapSlot(slot), capability.ObjectType(ot), oid, capability.Perms(perms), gen), nil
	case KindCapabilityRevoked:
		pid := u64()
		slot := u32()
		return NewCapabilityRevoked(ids.ProcessId(pid), ids.CapSlot(slot)), nil
	case KindMessageSent:
		from := u64()
		to := u64()
		tag := u32()
		size := u32()
		return NewMessageSent(ids.ProcessId(from), ids.EndpointId(to), tag, size), nil
	case KindMessageDelivered:
		ep := u64()
		to := u64()
		tag := u32()
		return NewMessageDelivered(ids.EndpointId(ep), ids.ProcessId(to), tag), nil
	case KindMessageRejected:
		from := u64()
		to := u64()
		reason := str()
		return NewMessageRejected(ids.ProcessId(from), ids.EndpointId(to), reason), nil
	case KindCallTimedOut:
		return NewCallTimedOut(ids.ProcessId(u64())), nil
	default:
		return Commit{}, fmt.Errorf("commit: unknown kind %d during decode", kind)
	}
}

// Hash256 is a 256-bit cryptographic digest, the chain-hash unit used by
// the CommitLog (spec.md §3, §6: "256-bit cryptographic digest over the
// previous hash plus the serialized payload").
type Hash256 [32]byte

// ChainHash computes H(prevHash || ts || typeTag || serializedPayload), the
// hash of one CommitLog entry given its predecessor's hash.
func ChainHash(prevHash Hash256, tsNs uint64, c Commit) Hash256 {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], tsNs)

	h := sha256.New()
	h.Write(prevHash[:])
	h.Write(tsBuf[:])
	payload := Encode(c)
	h.Write(payload)
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}
