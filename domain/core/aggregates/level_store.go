package aggregates

import (
	"fmt"
	"sort"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// LevelKey addresses one ordered children list: the flat root list for
// level 1 (zero Parent) or the children of Parent at Level.
type LevelKey struct {
	Level  valueobjects.Level
	Parent valueobjects.NodeID
}

// LevelStore holds the per-level, per-parent node collections of a tree.
// An absent key means "no children loaded yet" and is never an error.
type LevelStore struct {
	maxDepth int
	maxNodes int

	roots    []*entities.Node
	children map[valueobjects.Level]map[valueobjects.NodeID][]*entities.Node

	// Local (user) edits are stamped with a store revision rather than a
	// clock, so sessions saved from different hosts still order edits
	// against generation tickets. Generation results do not overwrite
	// keys edited after their ticket's revision.
	revision uint64
	edits    map[LevelKey]uint64
}

// NewLevelStore creates an empty store bounded by cfg
func NewLevelStore(cfg *config.DomainConfig) *LevelStore {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &LevelStore{
		maxDepth: cfg.MaxDepth,
		maxNodes: cfg.MaxNodesPerLevel,
		children: make(map[valueobjects.Level]map[valueobjects.NodeID][]*entities.Node),
		edits:    make(map[LevelKey]uint64),
	}
}

// MaxDepth returns the deepest supported level
func (s *LevelStore) MaxDepth() int {
	return s.maxDepth
}

func (s *LevelStore) checkKey(level valueobjects.Level, parent valueobjects.NodeID) (LevelKey, error) {
	if !level.Valid(s.maxDepth) {
		return LevelKey{}, invalidLevel(level, s.maxDepth)
	}
	if level == valueobjects.RootLevel {
		return LevelKey{Level: level}, nil
	}
	if parent.IsZero() {
		return LevelKey{}, pkgerrors.NewValidationError(fmt.Sprintf("level %d requires a parent id", level)).
			WithCode("MISSING_PARENT").
			WithCause(ErrMissingParent)
	}
	return LevelKey{Level: level, Parent: parent}, nil
}

func (s *LevelStore) list(key LevelKey) []*entities.Node {
	if key.Level == valueobjects.RootLevel {
		return s.roots
	}
	return s.children[key.Level][key.Parent]
}

func (s *LevelStore) put(key LevelKey, nodes []*entities.Node) {
	if key.Level == valueobjects.RootLevel {
		s.roots = nodes
		return
	}
	byParent, ok := s.children[key.Level]
	if !ok {
		byParent = make(map[valueobjects.NodeID][]*entities.Node)
		s.children[key.Level] = byParent
	}
	byParent[key.Parent] = nodes
}

func (s *LevelStore) drop(key LevelKey) {
	if key.Level == valueobjects.RootLevel {
		s.roots = nil
		return
	}
	if byParent, ok := s.children[key.Level]; ok {
		delete(byParent, key.Parent)
		if len(byParent) == 0 {
			delete(s.children, key.Level)
		}
	}
	delete(s.edits, key)
}

// SetLevel replaces the ordered list for parent at level (the flat root
// list when level is 1). Last writer wins; nothing is merged.
func (s *LevelStore) SetLevel(level valueobjects.Level, parent valueobjects.NodeID, nodes []*entities.Node) error {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return err
	}
	if s.maxNodes > 0 && len(nodes) > s.maxNodes {
		return pkgerrors.NewValidationError(fmt.Sprintf("level %d accepts at most %d nodes", level, s.maxNodes)).
			WithCode("LEVEL_FULL").
			WithCause(ErrLevelFull)
	}

	seen := make(map[valueobjects.NodeID]struct{}, len(nodes))
	list := make([]*entities.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID()]; dup {
			return pkgerrors.NewValidationError(fmt.Sprintf("node %q appears twice under the same parent", n.ID())).
				WithCode("DUPLICATE_NODE").
				WithCause(ErrDuplicateNode)
		}
		seen[n.ID()] = struct{}{}
		list = append(list, n.WithLevel(level))
	}

	s.put(key, list)
	return nil
}

// ChildrenOf returns copies of the nodes stored for parent at level, or an
// empty slice when the key is absent or invalid.
func (s *LevelStore) ChildrenOf(level valueobjects.Level, parent valueobjects.NodeID) []*entities.Node {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return []*entities.Node{}
	}
	src := s.list(key)
	out := make([]*entities.Node, len(src))
	for i, n := range src {
		out[i] = n.Clone()
	}
	return out
}

// HasChildren reports whether any list is stored for parent at level
func (s *LevelStore) HasChildren(level valueobjects.Level, parent valueobjects.NodeID) bool {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return false
	}
	return len(s.list(key)) > 0
}

// AddCustomNode appends a user-authored node to the end of the list for
// parent at level, creating the list if absent.
func (s *LevelStore) AddCustomNode(level valueobjects.Level, parent valueobjects.NodeID, node *entities.Node) error {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return err
	}
	if !node.IsCustom() {
		return pkgerrors.NewValidationError("node must be flagged as custom").
			WithCode("NOT_CUSTOM").
			WithCause(ErrNotCustomNode)
	}

	list := s.list(key)
	if s.maxNodes > 0 && len(list) >= s.maxNodes {
		return pkgerrors.NewConflictError(fmt.Sprintf("level %d already holds %d nodes", level, len(list))).
			WithCode("LEVEL_FULL").
			WithCause(ErrLevelFull)
	}
	for _, n := range list {
		if n.ID().Equals(node.ID()) {
			return pkgerrors.NewConflictError(fmt.Sprintf("node %q already exists under this parent", node.ID())).
				WithCode("DUPLICATE_NODE").
				WithCause(ErrDuplicateNode)
		}
	}

	next := make([]*entities.Node, len(list), len(list)+1)
	copy(next, list)
	next = append(next, node.WithLevel(level))
	s.put(key, next)
	s.markEdited(key)
	return nil
}

// RemoveNode removes a node by id from the list for parent at level.
// It reports whether something was removed; a missing node is a no-op.
// Descendant lists keyed by the removed id are left in place (see
// RemoveSubtree and PruneOrphans).
func (s *LevelStore) RemoveNode(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID) bool {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return false
	}
	list := s.list(key)
	for i, n := range list {
		if n.ID().Equals(id) {
			next := make([]*entities.Node, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			s.put(key, next)
			s.markEdited(key)
			return true
		}
	}
	return false
}

// FindNode does a linear search for id in the list for parent at level.
// Absence is reported through ok, never as an error.
func (s *LevelStore) FindNode(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID) (*entities.Node, bool) {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return nil, false
	}
	for _, n := range s.list(key) {
		if n.ID().Equals(id) {
			return n.Clone(), true
		}
	}
	return nil, false
}

// UpdateNode applies fn to the stored node and records a local edit
func (s *LevelStore) UpdateNode(level valueobjects.Level, parent valueobjects.NodeID, id valueobjects.NodeID, fn func(*entities.Node) error) error {
	key, err := s.checkKey(level, parent)
	if err != nil {
		return err
	}
	list := s.list(key)
	for i, n := range list {
		if !n.ID().Equals(id) {
			continue
		}
		updated := n.Clone()
		if err := fn(updated); err != nil {
			return err
		}
		next := make([]*entities.Node, len(list))
		copy(next, list)
		next[i] = updated
		s.put(key, next)
		s.markEdited(key)
		return nil
	}
	return notFound(level, parent, id)
}

// RemoveSubtree drops every list reachable below id at level, i.e. the
// children keyed by id at level+1 and their descendants. It returns the
// number of lists removed. The node itself is not touched.
func (s *LevelStore) RemoveSubtree(level valueobjects.Level, id valueobjects.NodeID) int {
	removed := 0
	frontier := []valueobjects.NodeID{id}
	for l := level.Next(); int(l) <= s.maxDepth && len(frontier) > 0; l++ {
		var next []valueobjects.NodeID
		for _, parent := range frontier {
			key := LevelKey{Level: l, Parent: parent}
			list, ok := s.children[l][parent]
			if !ok {
				continue
			}
			for _, child := range list {
				next = append(next, child.ID())
			}
			s.drop(key)
			removed++
		}
		frontier = next
	}
	return removed
}

// Orphans lists keys whose parent id no longer appears anywhere at the
// level above.
func (s *LevelStore) Orphans() []LevelKey {
	var out []LevelKey
	for level := valueobjects.Level(2); int(level) <= s.maxDepth; level++ {
		byParent := s.children[level]
		if len(byParent) == 0 {
			continue
		}
		present := s.idsAt(level.Parent())
		for parent := range byParent {
			if _, ok := present[parent]; !ok {
				out = append(out, LevelKey{Level: level, Parent: parent})
			}
		}
	}
	sortKeys(out)
	return out
}

// PruneOrphans removes orphaned lists until none remain and returns how
// many were removed.
func (s *LevelStore) PruneOrphans() int {
	total := 0
	for {
		orphans := s.Orphans()
		if len(orphans) == 0 {
			return total
		}
		for _, key := range orphans {
			s.drop(key)
		}
		total += len(orphans)
	}
}

func (s *LevelStore) idsAt(level valueobjects.Level) map[valueobjects.NodeID]struct{} {
	ids := make(map[valueobjects.NodeID]struct{})
	if level == valueobjects.RootLevel {
		for _, n := range s.roots {
			ids[n.ID()] = struct{}{}
		}
		return ids
	}
	for _, list := range s.children[level] {
		for _, n := range list {
			ids[n.ID()] = struct{}{}
		}
	}
	return ids
}

func (s *LevelStore) markEdited(key LevelKey) {
	s.revision++
	s.edits[key] = s.revision
}

// Revision returns the stamp of the latest local edit, 0 when none
func (s *LevelStore) Revision() uint64 {
	return s.revision
}

// carryRevision keeps the counter monotonic when a store replaces another
func (s *LevelStore) carryRevision(rev uint64) {
	if rev > s.revision {
		s.revision = rev
	}
}

// EditedSince reports whether the user edited the list at key after the
// store was at revision rev
func (s *LevelStore) EditedSince(key LevelKey, rev uint64) bool {
	at, ok := s.edits[key]
	return ok && at > rev
}

// LastEdit returns the revision of the last local edit of key
func (s *LevelStore) LastEdit(key LevelKey) (uint64, bool) {
	at, ok := s.edits[key]
	return at, ok
}

// Keys returns every stored key, root first, then by level and parent
func (s *LevelStore) Keys() []LevelKey {
	var keys []LevelKey
	if s.roots != nil {
		keys = append(keys, LevelKey{Level: valueobjects.RootLevel})
	}
	for level, byParent := range s.children {
		for parent := range byParent {
			keys = append(keys, LevelKey{Level: level, Parent: parent})
		}
	}
	sortKeys(keys)
	return keys
}

// NodeCount returns the total number of stored nodes
func (s *LevelStore) NodeCount() int {
	count := len(s.roots)
	for _, byParent := range s.children {
		for _, list := range byParent {
			count += len(list)
		}
	}
	return count
}

// IsEmpty reports whether nothing has been loaded
func (s *LevelStore) IsEmpty() bool {
	return s.NodeCount() == 0
}

// adopt copies a key's list and edit stamp from another store
func (s *LevelStore) adopt(other *LevelStore, key LevelKey) {
	s.put(key, other.list(key))
	if at, ok := other.edits[key]; ok {
		s.edits[key] = at
		s.carryRevision(at)
	}
}

func sortKeys(keys []LevelKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Level != keys[j].Level {
			return keys[i].Level < keys[j].Level
		}
		return keys[i].Parent.String() < keys[j].Parent.String()
	})
}

// LevelEntry is the persisted form of one list
type LevelEntry struct {
	Level    int                 `json:"level" dynamodbav:"level"`
	ParentID string              `json:"parentId,omitempty" dynamodbav:"parent_id,omitempty"`
	Nodes    []entities.NodeData `json:"nodes" dynamodbav:"nodes"`
	Edit     uint64              `json:"edit,omitempty" dynamodbav:"edit,omitempty"`
}

// Snapshot returns the persisted form of the store
func (s *LevelStore) Snapshot() []LevelEntry {
	keys := s.Keys()
	entries := make([]LevelEntry, 0, len(keys))
	for _, key := range keys {
		entry := LevelEntry{
			Level:    key.Level.Int(),
			ParentID: key.Parent.String(),
			Nodes:    entities.NodesToData(s.list(key)),
		}
		entry.Edit = s.edits[key]
		entries = append(entries, entry)
	}
	return entries
}

// RestoreLevelStore rebuilds a store from its persisted form
func RestoreLevelStore(cfg *config.DomainConfig, entries []LevelEntry) (*LevelStore, error) {
	s := NewLevelStore(cfg)
	for _, entry := range entries {
		nodes := make([]*entities.Node, 0, len(entry.Nodes))
		for _, data := range entry.Nodes {
			n, err := entities.ReconstructNode(data)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}

		var parent valueobjects.NodeID
		if entry.ParentID != "" {
			id, err := valueobjects.NewNodeIDFromString(entry.ParentID)
			if err != nil {
				return nil, pkgerrors.NewValidationError(err.Error())
			}
			parent = id
		}
		level := valueobjects.Level(entry.Level)
		if err := s.SetLevel(level, parent, nodes); err != nil {
			return nil, err
		}
		if entry.Edit > 0 {
			s.edits[LevelKey{Level: level, Parent: parent}] = entry.Edit
			s.carryRevision(entry.Edit)
		}
	}
	return s, nil
}
