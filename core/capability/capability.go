// Package capability defines kernel capabilities: unforgeable references to
// kernel objects carrying a fixed rights bitmask. Capabilities reference
// kernel objects only — endpoints, processes, and the coarse resource
// classes the kernel itself mediates. No semantic capability (file,
// socket, admin) lives in the kernel; those are userspace concepts built on
// top of these primitives by Init and the services it grants to.
package capability

import "fmt"

// ObjectType is the fixed enum of kernel object kinds a capability may
// reference.
type ObjectType uint8

const (
	ObjectEndpoint ObjectType = iota + 1
	ObjectConsole
	ObjectStorage
	ObjectNetwork
	ObjectProcess
	ObjectMemory
	ObjectIrq
	ObjectIoPort
)

func (t ObjectType) String() string {
	switch t {
	case ObjectEndpoint:
		return "Endpoint"
	case ObjectConsole:
		return "Console"
	case ObjectStorage:
		return "Storage"
	case ObjectNetwork:
		return "Network"
	case ObjectProcess:
		return "Process"
	case ObjectMemory:
		return "Memory"
	case ObjectIrq:
		return "Irq"
	case ObjectIoPort:
		return "IoPort"
	default:
		return fmt.Sprintf("ObjectType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the fixed object types.
func (t ObjectType) Valid() bool {
	return t >= ObjectEndpoint && t <= ObjectIoPort
}

// Perms is a fixed rights bitmask. Rights may only be reduced on
// delegation, never expanded: Intersect enforces this.
type Perms uint8

const (
	PermRead Perms = 1 << iota
	PermWrite
	PermGrant
)

// Intersect returns the rights present in both p and other — the maximum a
// grantor may legally delegate.
func (p Perms) Intersect(other Perms) Perms {
	return p & other
}

// Subset reports whether p grants no right that parent does not also grant.
func (p Perms) Subset(parent Perms) bool {
	return p&^parent == 0
}

func (p Perms) CanRead() bool  { return p&PermRead != 0 }
func (p Perms) CanWrite() bool { return p&PermWrite != 0 }
func (p Perms) CanGrant() bool { return p&PermGrant != 0 }

func (p Perms) String() string {
	s := ""
	if p.CanRead() {
		s += "r"
	} else {
		s += "-"
	}
	if p.CanWrite() {
		s += "w"
	} else {
		s += "-"
	}
	if p.CanGrant() {
		s += "g"
	} else {
		s += "-"
	}
	return s
}

// Capability is an unforgeable reference to a kernel object. It is valid
// iff Generation equals the current generation of the referenced object;
// the referent bumps its generation on revocation or owner termination,
// which invalidates every outstanding capability in a single counter write
// rather than requiring an explicit revocation list.
type Capability struct {
	ObjectType ObjectType
	ObjectId   uint64
	Perms      Perms
	Generation uint64
}

// Delegate returns the capability a grantor may hand to a grantee, with
// rights intersected to whatever subset of reqPerms the grantor itself
// holds. It never expands rights beyond c's own.
func (c Capability) Delegate(reqPerms Perms) Capability {
	return Capability{
		ObjectType: c.ObjectType,
		ObjectId:   c.ObjectId,
		Perms:      c.Perms.Intersect(reqPerms),
		Generation: c.Generation,
	}
}
