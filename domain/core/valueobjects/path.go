package valueobjects

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a selection would leave a gap in the path,
// i.e. selecting level k while level k-1 is unset.
var ErrInvalidPath = errors.New("invalid path")

// Level is a 1-based depth tier in the hierarchy
type Level int

// RootLevel is the flat, parentless first level
const RootLevel Level = 1

// Valid reports whether the level lies in [1, maxDepth]
func (l Level) Valid(maxDepth int) bool {
	return l >= RootLevel && int(l) <= maxDepth
}

// Parent returns the level whose nodes key this level's children lists
func (l Level) Parent() Level {
	return l - 1
}

// Next returns the level below this one
func (l Level) Next() Level {
	return l + 1
}

// Int returns the level as a plain int
func (l Level) Int() int {
	return int(l)
}

// Path is the user's selection across levels, one NodeID per level.
// It is stored as a slice indexed by depth so every path is prefix-closed:
// a selection at level k always implies selections at levels 1..k-1.
// Path is immutable; all mutators return a new value.
type Path struct {
	ids []NodeID
}

// EmptyPath returns a path with nothing selected
func EmptyPath() Path {
	return Path{}
}

// NewPath builds a path from level 1 downward
func NewPath(ids ...NodeID) (Path, error) {
	out := make([]NodeID, 0, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			return Path{}, fmt.Errorf("%w: level %d is empty", ErrInvalidPath, i+1)
		}
		out = append(out, id)
	}
	return Path{ids: out}, nil
}

// PathFromStrings builds a path from raw identifiers
func PathFromStrings(ids ...string) (Path, error) {
	nids := make([]NodeID, 0, len(ids))
	for i, raw := range ids {
		id, err := NewNodeIDFromString(raw)
		if err != nil {
			return Path{}, fmt.Errorf("%w: level %d: %v", ErrInvalidPath, i+1, err)
		}
		nids = append(nids, id)
	}
	return Path{ids: nids}, nil
}

// Depth returns the deepest selected level, 0 when nothing is selected
func (p Path) Depth() int {
	return len(p.ids)
}

// IsEmpty reports whether nothing is selected
func (p Path) IsEmpty() bool {
	return len(p.ids) == 0
}

// Get returns the selection at level, or false when unset
func (p Path) Get(level Level) (NodeID, bool) {
	if level < RootLevel || int(level) > len(p.ids) {
		return NodeID{}, false
	}
	return p.ids[level-1], true
}

// With selects id at level and drops every selection below it.
// Selecting a level whose parent level is unset returns ErrInvalidPath.
func (p Path) With(level Level, id NodeID) (Path, error) {
	if level < RootLevel {
		return p, fmt.Errorf("%w: level %d", ErrInvalidPath, level)
	}
	if int(level) > len(p.ids)+1 {
		return p, fmt.Errorf("%w: level %d selected while level %d is unset", ErrInvalidPath, level, level-1)
	}
	if id.IsZero() {
		return p, fmt.Errorf("%w: empty node id at level %d", ErrInvalidPath, level)
	}

	ids := make([]NodeID, level)
	copy(ids, p.ids[:level-1])
	ids[level-1] = id
	return Path{ids: ids}, nil
}

// Truncate removes selections at from and deeper
func (p Path) Truncate(from Level) Path {
	if from <= RootLevel {
		return Path{}
	}
	if int(from) > len(p.ids) {
		return p
	}
	ids := make([]NodeID, from-1)
	copy(ids, p.ids)
	return Path{ids: ids}
}

// ParentOf returns the key under which level's children are stored.
// Level 1 has no parent and returns the zero NodeID with ok=true.
func (p Path) ParentOf(level Level) (NodeID, bool) {
	if level == RootLevel {
		return NodeID{}, true
	}
	return p.Get(level.Parent())
}

// Deepest returns the most specific selection
func (p Path) Deepest() (Level, NodeID, bool) {
	if len(p.ids) == 0 {
		return 0, NodeID{}, false
	}
	return Level(len(p.ids)), p.ids[len(p.ids)-1], true
}

// IDs returns a copy of the selection, index 0 being level 1
func (p Path) IDs() []NodeID {
	out := make([]NodeID, len(p.ids))
	copy(out, p.ids)
	return out
}

// Strings returns the selection as raw identifiers
func (p Path) Strings() []string {
	out := make([]string, len(p.ids))
	for i, id := range p.ids {
		out[i] = id.String()
	}
	return out
}

// Equal compares two paths level by level
func (p Path) Equal(other Path) bool {
	if len(p.ids) != len(other.ids) {
		return false
	}
	for i := range p.ids {
		if !p.ids[i].Equals(other.ids[i]) {
			return false
		}
	}
	return true
}

// String renders the path as "a > b > c"
func (p Path) String() string {
	return strings.Join(p.Strings(), " > ")
}

// MarshalJSON encodes the path as an array of identifiers
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Strings())
}

// UnmarshalJSON decodes an array of identifiers
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := PathFromStrings(raw...)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
