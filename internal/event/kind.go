package event

import "fmt"

// Kind is the closed set of event kinds the checker understands. Core
// dispatch switches on Kind; the attribute bag only carries auxiliary data.
type Kind uint8

const (
	KindInit Kind = iota
	KindRead
	KindReadExclusive
	KindLockAcquireRead
	KindWrite
	KindWriteExclusive
	KindLockAcquireWrite
	KindLockReleaseWrite
	KindThreadStart
	KindThreadFinish
	KindThreadJoin
	KindLockAcquired
	KindAssume
	KindNoop
	KindBlock
	KindEnd
	KindError
)

var kindNames = map[Kind]string{
	KindInit:             "INIT",
	KindRead:             "READ",
	KindReadExclusive:    "READ_EX",
	KindLockAcquireRead:  "LOCK_ACQUIRE_READ",
	KindWrite:            "WRITE",
	KindWriteExclusive:   "WRITE_EX",
	KindLockAcquireWrite: "LOCK_ACQUIRE_WRITE",
	KindLockReleaseWrite: "LOCK_RELEASE_WRITE",
	KindThreadStart:      "THREAD_START",
	KindThreadFinish:     "THREAD_FINISH",
	KindThreadJoin:       "THREAD_JOIN",
	KindLockAcquired:     "LOCK_ACQUIRED",
	KindAssume:           "ASSUME",
	KindNoop:             "NOOP",
	KindBlock:            "BLOCK",
	KindEnd:              "END",
	KindError:            "ERROR",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// IsRead reports whether the kind observes a value from a write.
func (k Kind) IsRead() bool {
	return k == KindRead || k == KindReadExclusive || k == KindLockAcquireRead
}

// IsExclusiveRead reports whether the kind is the read half of an atomic
// read-modify-write, lock acquisition included.
func (k Kind) IsExclusiveRead() bool {
	return k == KindReadExclusive || k == KindLockAcquireRead
}

// IsWrite reports whether the kind takes part in a coherency chain.
func (k Kind) IsWrite() bool {
	switch k {
	case KindWrite, KindWriteExclusive, KindLockAcquireWrite, KindLockReleaseWrite:
		return true
	}
	return false
}

// IsExclusiveWrite reports whether the kind is the write half of a plain
// read-modify-write. Lock acquisitions are deliberately excluded.
func (k Kind) IsExclusiveWrite() bool {
	return k == KindWriteExclusive
}

// IsPairedWrite reports whether the kind is the write half of any exclusive
// pair.
func (k Kind) IsPairedWrite() bool {
	return k == KindWriteExclusive || k == KindLockAcquireWrite
}

// IsLock reports whether the kind is one of the lock events.
func (k Kind) IsLock() bool {
	switch k {
	case KindLockAcquireRead, KindLockAcquireWrite, KindLockReleaseWrite, KindLockAcquired:
		return true
	}
	return false
}

// IsNoop reports whether the kind is a marker that neither reads nor writes
// memory.
func (k Kind) IsNoop() bool {
	switch k {
	case KindThreadStart, KindThreadFinish, KindThreadJoin, KindLockAcquired, KindAssume, KindNoop:
		return true
	}
	return false
}

// IsBlockingLabel reports whether the kind stalls its task.
func (k Kind) IsBlockingLabel() bool {
	return k == KindBlock
}

// PairsWith reports whether a write of kind w completes an exclusive read of
// kind k.
func (k Kind) PairsWith(w Kind) bool {
	switch k {
	case KindReadExclusive:
		return w == KindWriteExclusive
	case KindLockAcquireRead:
		return w == KindLockAcquireWrite
	}
	return false
}
