// Package commit defines the tagged union of kernel state mutations and the
// hash-chained, durable log that records them. A Commit is the only unit of
// observable state change in Zero OS: every mutation method on the kernel
// interior returns the commits it produced, and nothing reaches the
// CommitLog except through the Axiom gateway.
package commit

import (
	"fmt"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/pkg/ids"
)

// Kind identifies a Commit's concrete payload type. Kind values are stable
// across versions of this package and are part of the on-disk format.
type Kind uint16

const (
	KindProcessCreated Kind = iota + 1
	KindProcessTerminated
	KindProcessFaulted
	KindProcessReaped
	KindEndpointCreated
	KindEndpointClosed
	KindCapabilityInserted
	KindCapabilityRevoked
	KindMessageSent
	KindMessageDelivered
	KindMessageRejected
	KindCallTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindProcessCreated:
		return "ProcessCreated"
	case KindProcessTerminated:
		return "ProcessTerminated"
	case KindProcessFaulted:
		return "ProcessFaulted"
	case KindProcessReaped:
		return "ProcessReaped"
	case KindEndpointCreated:
		return "EndpointCreated"
	case KindEndpointClosed:
		return "EndpointClosed"
	case KindCapabilityInserted:
		return "CapabilityInserted"
	case KindCapabilityRevoked:
		return "CapabilityRevoked"
	case KindMessageSent:
		return "MessageSent"
	case KindMessageDelivered:
		return "MessageDelivered"
	case KindMessageRejected:
		return "MessageRejected"
	case KindCallTimedOut:
		return "CallTimedOut"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

// Commit is the tagged union of all state mutations the kernel interior may
// produce. Exactly one of the payload fields is populated, selected by Kind.
// Commits are self-describing and deterministically serializable (see
// Encode) so that replay and the hash chain are reproducible.
type Commit struct {
	Kind Kind

	ProcessCreated     *ProcessCreated     `json:",omitempty"`
	ProcessTerminated  *ProcessTerminated  `json:",omitempty"`
	ProcessFaulted     *ProcessFaulted     `json:",omitempty"`
	ProcessReaped      *ProcessReaped      `json:",omitempty"`
	EndpointCreated    *EndpointCreated    `json:",omitempty"`
	EndpointClosed     *EndpointClosed     `json:",omitempty"`
	CapabilityInserted *CapabilityInserted `json:",omitempty"`
	CapabilityRevoked  *CapabilityRevoked  `json:",omitempty"`
	MessageSent        *MessageSent        `json:",omitempty"`
	MessageDelivered   *MessageDelivered   `json:",omitempty"`
	MessageRejected    *MessageRejected    `json:",omitempty"`
	CallTimedOut       *CallTimedOut       `json:",omitempty"`
}

type ProcessCreated struct {
	Pid  ids.ProcessId
	Name string
}

type ProcessTerminated struct {
	Pid      ids.ProcessId
	ExitCode int32
}

type ProcessFaulted struct {
	Pid    ids.ProcessId
	Reason string
}

type ProcessReaped struct {
	Pid ids.ProcessId
}

type EndpointCreated struct {
	Endpoint ids.EndpointId
	Owner    ids.ProcessId
}

type EndpointClosed struct {
	Endpoint ids.EndpointId
}

type CapabilityInserted struct {
	Pid        ids.ProcessId
	Slot       ids.CapSlot
	ObjectType capability.ObjectType
	ObjectId   uint64
	Perms      capability.Perms
	Generation uint64
}

type CapabilityRevoked struct {
	Pid  ids.ProcessId
	Slot ids.CapSlot
}

type MessageSent struct {
	From  ids.ProcessId
	ToEp  ids.EndpointId
	Tag   uint32
	Size  uint32
}

type MessageDelivered struct {
	Endpoint ids.EndpointId
	To       ids.ProcessId
	Tag      uint32
}

type MessageRejected struct {
	From   ids.ProcessId
	ToEp   ids.EndpointId
	Reason string
}

type CallTimedOut struct {
	Pid ids.ProcessId
}

func fromProcessCreated(pid ids.ProcessId, name string) Commit {
	return Commit{Kind: KindProcessCreated, ProcessCreated: &ProcessCreated{Pid: pid, Name: name}}
}

// NewProcessCreated builds a ProcessCreated commit.
func NewProcessCreated(pid ids.ProcessId, name string) Commit { return fromProcessCreated(pid, name) }

// NewProcessTerminated builds a ProcessTerminated commit.
func NewProcessTerminated(pid ids.ProcessId, exit int32) Commit {
	return Commit{Kind: KindProcessTerminated, ProcessTerminated: &ProcessTerminated{Pid: pid, ExitCode: exit}}
}

// NewProcessFaulted builds a ProcessFaulted commit.
func NewProcessFaulted(pid ids.ProcessId, reason string) Commit {
	return Commit{Kind: KindProcessFaulted, ProcessFaulted: &ProcessFaulted{Pid: pid, Reason: reason}}
}

// NewProcessReaped builds a ProcessReaped commit.
func NewProcessReaped(pid ids.ProcessId) Commit {
	return Commit{Kind: KindProcessReaped, ProcessReaped: &ProcessReaped{Pid: pid}}
}

// NewEndpointCreated builds an EndpointCreated commit.
func NewEndpointCreated(ep ids.EndpointId, owner ids.ProcessId) Commit {
	return Commit{Kind: KindEndpointCreated, EndpointCreated: &EndpointCreated{Endpoint: ep, Owner: owner}}
}

// NewEndpointClosed builds an EndpointClosed commit.
func NewEndpointClosed(ep ids.EndpointId) Commit {
	return Commit{Kind: KindEndpointClosed, EndpointClosed: &EndpointClosed{Endpoint: ep}}
}

// NewCapabilityInserted builds a CapabilityInserted commit.
func NewCapabilityInserted(pid ids.ProcessId, slot ids.CapSlot, ot capability.ObjectType, oid uint64, perms capability.Perms, gen uint64) Commit {
	return Commit{
		Kind: KindCapabilityInserted,
		CapabilityInserted: &CapabilityInserted{
			Pid: pid, Slot: slot, ObjectType: ot, ObjectId: oid, Perms: perms, Generation: gen,
		},
	}
}

// NewCapabilityRevoked builds a CapabilityRevoked commit.
func NewCapabilityRevoked(pid ids.ProcessId, slot ids.CapSlot) Commit {
	return Commit{Kind: KindCapabilityRevoked, CapabilityRevoked: &CapabilityRevoked{Pid: pid, Slot: slot}}
}

// NewMessageSent builds a MessageSent commit.
func NewMessageSent(from ids.ProcessId, to ids.EndpointId, tag uint32, size uint32) Commit {
	return Commit{Kind: KindMessageSent, MessageSent: &MessageSent{From: from, ToEp: to, Tag: tag, Size: size}}
}

// NewMessageDelivered builds a MessageDelivered commit.
func NewMessageDelivered(ep ids.EndpointId, to ids.ProcessId, tag uint32) Commit {
	return Commit{Kind: KindMessageDelivered, MessageDelivered: &MessageDelivered{Endpoint: ep, To: to, Tag: tag}}
}

// NewMessageRejected builds a MessageRejected commit.
func NewMessageRejected(from ids.ProcessId, to ids.EndpointId, reason string) Commit {
	return Commit{Kind: KindMessageRejected, MessageRejected: &MessageRejected{From: from, ToEp: to, Reason: reason}}
}

// NewCallTimedOut builds a CallTimedOut commit.
func NewCallTimedOut(pid ids.ProcessId) Commit {
	return Commit{Kind: KindCallTimedOut, CallTimedOut: &CallTimedOut{Pid: pid}}
}
