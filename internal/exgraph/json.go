package exgraph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/trustgo/internal/event"
)

// Snapshot is the JSON form of a graph: nodes keyed by the string form of
// their event key.
type Snapshot struct {
	Nodes map[string]NodeSnapshot `json:"nodes"`
}

// NodeSnapshot is the JSON form of one node.
type NodeSnapshot struct {
	Event      EventSnapshot       `json:"event"`
	Attributes map[string]string   `json:"attributes"`
	Edges      map[string][]string `json:"edges"`
}

// EventSnapshot is the JSON form of an event. Attribute values are rendered
// as strings.
type EventSnapshot struct {
	Key        KeySnapshot       `json:"key"`
	Location   *int64            `json:"location,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// KeySnapshot is the JSON form of a key; both fields are null for the
// initial event.
type KeySnapshot struct {
	TaskID    *int64 `json:"taskId"`
	Timestamp *int   `json:"timestamp"`
}

// Snapshot captures the graph in total order. Successor lists are sorted
// so equal graphs produce equal snapshots.
func (g *Graph) Snapshot(ignoreLocation bool) Snapshot {
	s := Snapshot{Nodes: make(map[string]NodeSnapshot, len(g.all))}
	for _, n := range g.all {
		s.Nodes[n.Key().String()] = n.snapshot(ignoreLocation)
	}
	return s
}

func (n *Node) snapshot(ignoreLocation bool) NodeSnapshot {
	ev := n.Event
	es := EventSnapshot{
		Type:       ev.Kind.String(),
		Attributes: make(map[string]string, len(ev.Attrs)),
	}
	if !ev.Key.IsInit() {
		task, seq := int64(ev.Key.Task), ev.Key.Seq
		es.Key = KeySnapshot{TaskID: &task, Timestamp: &seq}
	}
	if !ignoreLocation && ev.HasLocation() {
		loc := int64(ev.Location)
		es.Location = &loc
	}
	for _, name := range ev.AttrNames() {
		es.Attributes[name] = fmt.Sprint(ev.Attrs[name])
	}

	ns := NodeSnapshot{
		Event:      es,
		Attributes: make(map[string]string, len(n.attrs)),
		Edges:      make(map[string][]string, len(n.succ)),
	}
	for name, v := range n.attrs {
		ns.Attributes[name] = fmt.Sprint(v)
	}
	for rel, ks := range n.succ {
		out := make([]string, 0, len(ks))
		for _, k := range sortedKeys(ks) {
			out = append(out, k.String())
		}
		ns.Edges[rel.String()] = out
	}
	return ns
}

// JSON serializes the graph.
func (g *Graph) JSON() ([]byte, error) {
	return json.Marshal(g.Snapshot(false))
}

// JSONIgnoreLocation serializes the graph without locations, which differ
// between runs of the same interleaving.
func (g *Graph) JSONIgnoreLocation() ([]byte, error) {
	return json.Marshal(g.Snapshot(true))
}

// WriteToFile stores the JSON form of the graph at path.
func (g *Graph) WriteToFile(path string) error {
	data, err := json.MarshalIndent(g.Snapshot(false), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution graph to %s: %w", path, err)
	}
	return nil
}

// DecodeSnapshot parses the output of JSON and validates its keys.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode execution graph: %w", err)
	}
	for key, n := range s.Nodes {
		if _, err := event.ParseKey(key); err != nil {
			return Snapshot{}, err
		}
		for rel, succ := range n.Edges {
			if _, err := ParseRelation(rel); err != nil {
				return Snapshot{}, fmt.Errorf("node %s: %w", key, err)
			}
			for _, k := range succ {
				if _, err := event.ParseKey(k); err != nil {
					return Snapshot{}, fmt.Errorf("node %s: %w", key, err)
				}
			}
		}
	}
	return s, nil
}
