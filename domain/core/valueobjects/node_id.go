package valueobjects

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// NodeID is a value object representing a node identifier.
// IDs are opaque and only guaranteed unique among siblings; generated
// trees use whatever identifiers the generation service returns.
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID for locally authored nodes
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// NewNodeIDFromString creates a NodeID from an existing string. The value
// is kept as given; only blank ids are rejected.
func NewNodeIDFromString(id string) (NodeID, error) {
	if strings.TrimSpace(id) == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	return NodeID{value: id}, nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler so NodeID works as a JSON map key
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *NodeID) UnmarshalText(data []byte) error {
	id.value = string(data)
	return nil
}

// SessionID identifies an exploration session
type SessionID string

// NewSessionID creates a new random SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// ParseSessionID validates a session identifier received from a client
func ParseSessionID(s string) (SessionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", errors.New("session ID must be a valid UUID")
	}
	return SessionID(s), nil
}

// String returns the string representation
func (id SessionID) String() string {
	return string(id)
}

// TreeID identifies a generated or saved technology tree
type TreeID string

// NewTreeID creates a new random TreeID
func NewTreeID() TreeID {
	return TreeID(uuid.New().String())
}

// String returns the string representation
func (id TreeID) String() string {
	return string(id)
}
