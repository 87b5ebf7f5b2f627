package aggregates

import (
	"sync"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
)

// SignalKind distinguishes the notifications a Selection emits
type SignalKind string

const (
	SignalSelectionChanged SignalKind = "selection_changed"
	SignalDetailRequested  SignalKind = "detail_requested"
)

// SelectionSignal is delivered to observers after a successful select or
// restore. Path is the selection after the change.
type SelectionSignal struct {
	Kind     SignalKind
	Level    valueobjects.Level
	NodeID   valueobjects.NodeID
	Path     valueobjects.Path
	Restored bool
}

// SelectionObserver receives selection signals. Observers run
// synchronously on the caller's goroutine and must not block.
type SelectionObserver func(SelectionSignal)

// NodeFinder looks up a node in the children list of parent at level
type NodeFinder interface {
	FindNode(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID) (*entities.Node, bool)
}

// NodeFinderFunc adapts a function to NodeFinder
type NodeFinderFunc func(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID) (*entities.Node, bool)

// FindNode calls f
func (f NodeFinderFunc) FindNode(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID) (*entities.Node, bool) {
	return f(level, parent, id)
}

// Selection is the path model: the current prefix-closed selection plus
// the observers interested in its changes.
type Selection struct {
	path        valueobjects.Path
	maxDepth    int
	detailLevel valueobjects.Level
	finder      NodeFinder

	mu        sync.Mutex
	nextID    int
	observers []registeredObserver
}

type registeredObserver struct {
	id int
	fn SelectionObserver
}

// NewSelection creates an empty selection. A nil finder disables the
// existence check on Select. detailLevel 0 disables the detail signal.
func NewSelection(maxDepth, detailLevel int, finder NodeFinder) *Selection {
	return &Selection{
		maxDepth:    maxDepth,
		detailLevel: valueobjects.Level(detailLevel),
		finder:      finder,
	}
}

// Subscribe registers an observer and returns the function that removes it
func (s *Selection) Subscribe(fn SelectionObserver) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, registeredObserver{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Selection) notify(signal SelectionSignal) {
	s.mu.Lock()
	observers := make([]registeredObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(signal)
	}
}

func (s *Selection) emit(level valueobjects.Level, id valueobjects.NodeID, restored bool) {
	s.notify(SelectionSignal{
		Kind:     SignalSelectionChanged,
		Level:    level,
		NodeID:   id,
		Path:     s.path,
		Restored: restored,
	})
	if s.detailLevel > 0 && level == s.detailLevel {
		s.notify(SelectionSignal{
			Kind:     SignalDetailRequested,
			Level:    level,
			NodeID:   id,
			Path:     s.path,
			Restored: restored,
		})
	}
}

// Select sets the selection at level to id and clears every deeper level.
// Selecting below an unset level is rejected as an invalid path. When a
// finder is configured the deeper levels are cleared first and a NotFound
// error is returned if id is not a child of the selected parent.
func (s *Selection) Select(level valueobjects.Level, id valueobjects.NodeID) error {
	if !level.Valid(s.maxDepth) {
		return invalidLevel(level, s.maxDepth)
	}
	next, err := s.path.With(level, id)
	if err != nil {
		return invalidPath(err)
	}

	if s.finder != nil {
		s.path = s.path.Truncate(level.Next())
		parent, _ := next.ParentOf(level)
		if _, ok := s.finder.FindNode(level, parent, id); !ok {
			return notFound(level, parent, id)
		}
	}

	s.path = next
	s.emit(level, id, false)
	return nil
}

// Clear removes selections at from and deeper. No signal is emitted.
func (s *Selection) Clear(from valueobjects.Level) {
	s.path = s.path.Truncate(from)
}

// Get returns the selection at level
func (s *Selection) Get(level valueobjects.Level) (valueobjects.NodeID, bool) {
	return s.path.Get(level)
}

// Path returns the current selection
func (s *Selection) Path() valueobjects.Path {
	return s.path
}

// Restore replaces the whole selection, e.g. from history, and signals
// the deepest restored level with Restored set.
func (s *Selection) Restore(path valueobjects.Path) {
	s.path = path
	if level, id, ok := path.Deepest(); ok {
		s.emit(level, id, true)
	}
}

// reset replaces the selection without notifying observers
func (s *Selection) reset(path valueobjects.Path) {
	s.path = path
}

// ChannelObserver forwards signals to ch without blocking. A signal is
// dropped when ch is full; onDrop, if non-nil, is called for it.
func ChannelObserver(ch chan<- SelectionSignal, onDrop func(SelectionSignal)) SelectionObserver {
	return func(signal SelectionSignal) {
		select {
		case ch <- signal:
		default:
			if onDrop != nil {
				onDrop(signal)
			}
		}
	}
}
