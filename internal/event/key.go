package event

import (
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task inside the checker. Internal task ids are
// 0-indexed; the runtime boundary uses 1-indexed ids.
type TaskID int64

// Key is the stable identity of an event: the owning task and the event's
// position in that task's program order.
type Key struct {
	Task TaskID
	Seq  int
}

// InitKey is the key of the synthetic initial event. It sorts before every
// other key.
var InitKey = Key{Task: -1, Seq: -1}

// IsInit reports whether k identifies the initial event.
func (k Key) IsInit() bool {
	return k.Task < 0
}

// Compare orders keys by task id and then by sequence number, with the
// initial event first. It returns -1, 0 or +1.
func (k Key) Compare(other Key) int {
	switch {
	case k.IsInit() && other.IsInit():
		return 0
	case k.IsInit():
		return -1
	case other.IsInit():
		return 1
	case k.Task != other.Task:
		if k.Task < other.Task {
			return -1
		}
		return 1
	case k.Seq != other.Seq:
		if k.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// Less is a convenience wrapper around Compare for sort functions.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// String renders the key as "{task, seq}". The initial event renders as
// "{null, null}".
func (k Key) String() string {
	if k.IsInit() {
		return "{null, null}"
	}
	return fmt.Sprintf("{%d, %d}", k.Task, k.Seq)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Key{}, fmt.Errorf("invalid key %q: missing braces", s)
	}
	parts := strings.Split(trimmed[1:len(trimmed)-1], ",")
	if len(parts) != 2 {
		return Key{}, fmt.Errorf("invalid key %q: expected two components", s)
	}
	taskStr := strings.TrimSpace(parts[0])
	seqStr := strings.TrimSpace(parts[1])
	if taskStr == "null" && seqStr == "null" {
		return InitKey, nil
	}

	task, err := strconv.ParseInt(taskStr, 10, 64)
	if err != nil || task < 0 {
		return Key{}, fmt.Errorf("invalid key %q: bad task id", s)
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq < 0 {
		return Key{}, fmt.Errorf("invalid key %q: bad sequence number", s)
	}
	return Key{Task: TaskID(task), Seq: seq}, nil
}
