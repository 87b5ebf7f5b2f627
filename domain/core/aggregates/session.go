package aggregates

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

var timeNow = func() time.Time {
	return time.Now().UTC()
}

// GenerationScope identifies what a generation request covers: the whole
// tree (zero Level) or the children of Parent at Level.
type GenerationScope struct {
	Level  valueobjects.Level
	Parent valueobjects.NodeID
}

// TreeScope is the scope of a full tree generation
var TreeScope = GenerationScope{}

// IsTree reports whether the scope covers the whole tree
func (g GenerationScope) IsTree() bool {
	return g.Level == 0
}

// Key renders the scope as "tree" or "level:<k>:<parent>"
func (g GenerationScope) Key() string {
	if g.IsTree() {
		return "tree"
	}
	return fmt.Sprintf("level:%d:%s", g.Level, g.Parent.String())
}

// ParseGenerationScope is the inverse of Key
func ParseGenerationScope(key string) (GenerationScope, error) {
	if key == "tree" {
		return TreeScope, nil
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "level" {
		return GenerationScope{}, pkgerrors.NewValidationError(fmt.Sprintf("malformed generation scope %q", key))
	}
	level, err := strconv.Atoi(parts[1])
	if err != nil || level < 1 {
		return GenerationScope{}, pkgerrors.NewValidationError(fmt.Sprintf("malformed generation scope %q", key))
	}
	var parent valueobjects.NodeID
	if level > 1 {
		parent, err = valueobjects.NewNodeIDFromString(parts[2])
		if err != nil {
			return GenerationScope{}, pkgerrors.NewValidationError(fmt.Sprintf("malformed generation scope %q", key))
		}
	}
	return GenerationScope{Level: valueobjects.Level(level), Parent: parent}, nil
}

// GenerationTicket is issued when a generation request starts. Only the
// latest ticket of a scope may apply its result. Revision is the level
// store revision at issue time; lists edited after it are kept.
type GenerationTicket struct {
	Scope    string    `json:"scope" dynamodbav:"scope"`
	Sequence uint64    `json:"sequence" dynamodbav:"sequence"`
	Revision uint64    `json:"revision" dynamodbav:"revision"`
	IssuedAt time.Time `json:"issuedAt" dynamodbav:"issued_at"`
}

// GeneratedLevel is one children list produced by the generation service
type GeneratedLevel struct {
	Level  valueobjects.Level
	Parent valueobjects.NodeID
	Nodes  []*entities.Node
}

// GenerationResult is what the generation service returned for a ticket
type GenerationResult struct {
	TreeID valueobjects.TreeID
	Query  string
	Mode   valueobjects.GenerationMode
	Levels []GeneratedLevel
}

// MergeOutcome reports how a generation result was applied
type MergeOutcome struct {
	Scope     string `json:"scope"`
	Sequence  uint64 `json:"sequence"`
	Discarded bool   `json:"discarded"`
	Reason    string `json:"reason,omitempty"`
	Merged    int    `json:"merged"`
	Skipped   int    `json:"skipped"`
	Dropped   int    `json:"dropped"` // lists outside the ticket's scope
}

// Session is the aggregate root for one user's exploration of a tree.
// It owns the level store, the selection and the navigation history.
type Session struct {
	id     valueobjects.SessionID
	userID string
	treeID valueobjects.TreeID
	query  string
	mode   valueobjects.GenerationMode
	cfg    *config.DomainConfig

	store     *LevelStore
	selection *Selection
	history   *History

	generationSeq uint64
	pending       map[string]GenerationTicket

	createdAt time.Time
	updatedAt time.Time
	version   int
	changed   bool
	events    []events.DomainEvent
}

// NewSession creates an empty session for userID
func NewSession(userID string, cfg *config.DomainConfig) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.NewValidationError("userID required")
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	now := timeNow()
	s := &Session{
		id:        valueobjects.NewSessionID(),
		userID:    userID,
		mode:      valueobjects.ModeNeedsFirst,
		cfg:       cfg,
		store:     NewLevelStore(cfg),
		history:   NewHistory(valueobjects.EmptyPath(), cfg.MaxHistoryEntries),
		pending:   make(map[string]GenerationTicket),
		createdAt: now,
		updatedAt: now,
	}
	s.attachSelection(valueobjects.EmptyPath())
	return s, nil
}

func (s *Session) attachSelection(path valueobjects.Path) {
	s.selection = NewSelection(s.cfg.MaxDepth, s.cfg.DetailLevel, NodeFinderFunc(
		func(level valueobjects.Level, parent, id valueobjects.NodeID) (*entities.Node, bool) {
			return s.store.FindNode(level, parent, id)
		},
	))
	s.selection.reset(path)
	s.selection.Subscribe(s.onSelection)
}

func (s *Session) onSelection(signal SelectionSignal) {
	now := timeNow()
	switch signal.Kind {
	case SignalSelectionChanged:
		s.addEvent(events.NewSelectionChanged(
			s.id.String(), s.userID, signal.Level.Int(), signal.NodeID.String(),
			signal.Path.Strings(), signal.Restored, s.version+1, now,
		))
	case SignalDetailRequested:
		s.addEvent(events.NewDetailRequested(
			s.id.String(), s.userID, signal.Level.Int(), signal.NodeID.String(), s.version+1, now,
		))
	}
}

// Getters

func (s *Session) ID() valueobjects.SessionID        { return s.id }
func (s *Session) UserID() string                    { return s.userID }
func (s *Session) TreeID() valueobjects.TreeID       { return s.treeID }
func (s *Session) Query() string                     { return s.query }
func (s *Session) Mode() valueobjects.GenerationMode { return s.mode }
func (s *Session) Config() *config.DomainConfig      { return s.cfg }
func (s *Session) Path() valueobjects.Path           { return s.selection.Path() }
func (s *Session) CanUndo() bool                     { return s.history.CanUndo() }
func (s *Session) CanRedo() bool                     { return s.history.CanRedo() }
func (s *Session) HistoryLen() int                   { return s.history.Len() }
func (s *Session) HistoryCursor() int                { return s.history.Cursor() }
func (s *Session) CreatedAt() time.Time              { return s.createdAt }
func (s *Session) UpdatedAt() time.Time              { return s.updatedAt }
func (s *Session) Version() int                      { return s.version }

// Store exposes the level store for read-only projections. Mutations must
// go through the session so edits are tracked and events raised.
func (s *Session) Store() *LevelStore {
	return s.store
}

// Subscribe registers an additional selection observer
func (s *Session) Subscribe(fn SelectionObserver) (unsubscribe func()) {
	return s.selection.Subscribe(fn)
}

// IsOwnedBy reports whether userID owns the session
func (s *Session) IsOwnedBy(userID string) bool {
	return s.userID == userID
}

// Navigation

// Select selects id at level, clearing deeper levels, and commits the new
// path to history. The node must exist under the selected parent.
func (s *Session) Select(level valueobjects.Level, id valueobjects.NodeID) error {
	before := s.selection.Path()
	err := s.selection.Select(level, id)
	s.commitIfChanged(before)
	return err
}

// ClearSelection removes selections at from and deeper
func (s *Session) ClearSelection(from valueobjects.Level) {
	before := s.selection.Path()
	s.selection.Clear(from)
	s.commitIfChanged(before)
}

func (s *Session) commitIfChanged(before valueobjects.Path) {
	after := s.selection.Path()
	if after.Equal(before) {
		return
	}
	s.history.Commit(after)
	s.touch()
}

// Undo restores the previous path. ok is false when there is nothing to undo.
func (s *Session) Undo() (ok bool) {
	return s.navigate("undo", s.history.Undo)
}

// Redo restores the next path. ok is false when there is nothing to redo.
func (s *Session) Redo() (ok bool) {
	return s.navigate("redo", s.history.Redo)
}

func (s *Session) navigate(direction string, step func() (valueobjects.Path, bool)) bool {
	path, ok := step()
	if !ok {
		return false
	}
	s.selection.Restore(path)
	s.touch()
	s.addEvent(events.NewHistoryNavigated(
		s.id.String(), direction, s.history.Cursor(), path.Strings(), s.version+1, s.updatedAt,
	))
	return true
}

// Level store edits

// SetLevel replaces a children list with externally supplied data
func (s *Session) SetLevel(level valueobjects.Level, parent valueobjects.NodeID, nodes []*entities.Node) error {
	for _, n := range nodes {
		if err := n.Validate(s.cfg); err != nil {
			return err
		}
	}
	if err := s.store.SetLevel(level, parent, nodes); err != nil {
		return err
	}
	s.touch()
	return nil
}

// AddCustomNode creates a user-authored node and appends it under parent
func (s *Session) AddCustomNode(level valueobjects.Level, parent valueobjects.NodeID, name, description string) (*entities.Node, error) {
	node, err := entities.NewCustomNode(name, description, level)
	if err != nil {
		return nil, err
	}
	if err := node.Validate(s.cfg); err != nil {
		return nil, err
	}
	if err := s.store.AddCustomNode(level, parent, node); err != nil {
		return nil, err
	}

	s.touch()
	s.addEvent(events.NewCustomNodeAdded(
		s.id.String(), level.Int(), parent.String(), node.ID().String(), node.Name(), s.version+1, s.updatedAt,
	))
	return node.WithLevel(level), nil
}

// NodeUpdate carries the optional fields of an UpdateNode call
type NodeUpdate struct {
	Name        *string
	Description *string
	Info        *string
}

// UpdateNode renames or annotates an existing node
func (s *Session) UpdateNode(level valueobjects.Level, parent, id valueobjects.NodeID, update NodeUpdate) (*entities.Node, error) {
	var updated *entities.Node
	err := s.store.UpdateNode(level, parent, id, func(n *entities.Node) error {
		if update.Name != nil {
			if err := n.Rename(*update.Name); err != nil {
				return err
			}
		}
		if update.Description != nil {
			n.UpdateDescription(*update.Description)
		}
		if update.Info != nil {
			n.SetInfo(*update.Info)
		}
		if err := n.Validate(s.cfg); err != nil {
			return err
		}
		updated = n.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.touch()
	s.addEvent(events.NewNodeUpdated(
		s.id.String(), level.Int(), parent.String(), id.String(), updated.Name(), s.version+1, s.updatedAt,
	))
	return updated, nil
}

// RemoveNode deletes a node from its parent's list. Removing an absent
// node is a no-op. Descendant lists are dropped only when cascade is set;
// otherwise they remain as orphans until PruneOrphans. The selection is
// left untouched; projections fall through stale references.
func (s *Session) RemoveNode(level valueobjects.Level, parent, id valueobjects.NodeID, cascade bool) (removed bool, droppedLists int) {
	removed = s.store.RemoveNode(level, parent, id)
	if !removed {
		return false, 0
	}
	if cascade {
		droppedLists = s.store.RemoveSubtree(level, id)
	}

	s.touch()
	s.addEvent(events.NewNodeRemoved(
		s.id.String(), level.Int(), parent.String(), id.String(), cascade, s.version+1, s.updatedAt,
	))
	return true, droppedLists
}

// PruneOrphans removes children lists whose parent no longer exists
func (s *Session) PruneOrphans() int {
	n := s.store.PruneOrphans()
	if n > 0 {
		s.touch()
	}
	return n
}

// LoadTree replaces the level store with levels and resets the selection
// and history.
func (s *Session) LoadTree(treeID valueobjects.TreeID, query string, mode valueobjects.GenerationMode, levels []GeneratedLevel) error {
	store, err := s.buildStore(levels)
	if err != nil {
		return err
	}

	s.replaceTree(store, treeID, query, mode)
	for key := range s.pending {
		delete(s.pending, key)
	}
	return nil
}

func (s *Session) buildStore(levels []GeneratedLevel) (*LevelStore, error) {
	store := NewLevelStore(s.cfg)
	for _, l := range levels {
		for _, n := range l.Nodes {
			if err := n.Validate(s.cfg); err != nil {
				return nil, err
			}
		}
		if err := store.SetLevel(l.Level, l.Parent, l.Nodes); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *Session) replaceTree(store *LevelStore, treeID valueobjects.TreeID, query string, mode valueobjects.GenerationMode) {
	if s.store != nil {
		store.carryRevision(s.store.Revision())
	}
	s.store = store
	s.treeID = treeID
	s.query = query
	if mode != "" {
		s.mode = mode
	}
	s.selection.reset(valueobjects.EmptyPath())
	s.history.Reset(valueobjects.EmptyPath())
	s.touch()
	s.addEvent(events.NewTreeLoaded(
		s.id.String(), treeID.String(), query, s.mode.String(), store.NodeCount(), s.version+1, s.updatedAt,
	))
}

// Generation

// BeginGeneration issues a ticket for scope. Any earlier ticket for the
// same scope becomes stale.
func (s *Session) BeginGeneration(scope GenerationScope) (GenerationTicket, error) {
	if !scope.IsTree() {
		if _, err := s.store.checkKey(scope.Level, scope.Parent); err != nil {
			return GenerationTicket{}, err
		}
	}

	s.generationSeq++
	ticket := GenerationTicket{
		Scope:    scope.Key(),
		Sequence: s.generationSeq,
		Revision: s.store.Revision(),
		IssuedAt: timeNow(),
	}
	s.pending[ticket.Scope] = ticket
	s.touch()
	s.addEvent(events.NewGenerationRequested(s.id.String(), ticket.Scope, ticket.Sequence, s.version+1, s.updatedAt))
	return ticket, nil
}

// Pending returns the outstanding tickets ordered by sequence
func (s *Session) Pending() []GenerationTicket {
	out := make([]GenerationTicket, 0, len(s.pending))
	for _, t := range s.pending {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// ApplyGeneration merges a generation result. A result whose ticket is no
// longer the latest for its scope is discarded without error. Lists the
// user edited after the ticket was issued are kept and counted as skipped.
// A tree result replaces every other list and resets selection and history.
// A subtree result only touches the scope's list and lists below it; the
// rest is dropped.
func (s *Session) ApplyGeneration(ticket GenerationTicket, result GenerationResult) (MergeOutcome, error) {
	outcome := MergeOutcome{Scope: ticket.Scope, Sequence: ticket.Sequence}

	current, ok := s.pending[ticket.Scope]
	if !ok || current.Sequence != ticket.Sequence {
		outcome.Discarded = true
		outcome.Reason = ErrStaleGeneration.Error()
		s.addEvent(events.NewGenerationDiscarded(
			s.id.String(), ticket.Scope, ticket.Sequence, outcome.Reason, s.version+1, timeNow(),
		))
		return outcome, nil
	}

	scope, err := ParseGenerationScope(ticket.Scope)
	if err != nil {
		return outcome, err
	}
	incoming, err := s.buildStore(result.Levels)
	if err != nil {
		return outcome, err
	}

	delete(s.pending, ticket.Scope)

	if scope.IsTree() {
		s.mergeTree(ticket, incoming, &outcome)
		s.replaceTree(incoming, result.TreeID, result.Query, result.Mode)
		// children lists requested for the old tree are meaningless now
		for key := range s.pending {
			delete(s.pending, key)
		}
	} else {
		s.mergeSubtree(ticket, scope, incoming, &outcome)
		s.touch()
	}

	s.addEvent(events.NewGenerationMerged(
		s.id.String(), ticket.Scope, ticket.Sequence, outcome.Merged, outcome.Skipped, s.version+1, s.updatedAt,
	))
	return outcome, nil
}

// mergeTree carries locally edited lists from the current store into the
// incoming one.
func (s *Session) mergeTree(ticket GenerationTicket, incoming *LevelStore, outcome *MergeOutcome) {
	incomingKeys := make(map[LevelKey]struct{})
	for _, key := range incoming.Keys() {
		incomingKeys[key] = struct{}{}
	}
	for _, key := range s.store.Keys() {
		if !s.store.EditedSince(key, ticket.Revision) {
			continue
		}
		if _, ok := incomingKeys[key]; ok {
			outcome.Skipped++
		}
		incoming.adopt(s.store, key)
	}
	outcome.Merged = len(incomingKeys) - outcome.Skipped
}

// mergeSubtree merges the lists of an expansion result that belong to
// scope: the scope's own list and lists whose parent is reachable from it.
// Keys() is ordered by level, so parents are resolved before children.
func (s *Session) mergeSubtree(ticket GenerationTicket, scope GenerationScope, incoming *LevelStore, outcome *MergeOutcome) {
	root := LevelKey{Level: scope.Level, Parent: scope.Parent}
	reachable := map[valueobjects.Level]map[valueobjects.NodeID]struct{}{
		scope.Level: idSet(nil, s.store.list(root)),
	}

	for _, key := range incoming.Keys() {
		inScope := key == root
		if key.Level > scope.Level {
			_, inScope = reachable[key.Level-1][key.Parent]
		}
		if !inScope {
			outcome.Dropped++
			continue
		}

		list := incoming.list(key)
		if s.store.EditedSince(key, ticket.Revision) || s.supersedes(key, ticket) {
			outcome.Skipped++
			list = s.store.list(key)
		} else {
			s.store.put(key, list)
			outcome.Merged++
		}

		if key == root {
			reachable[key.Level] = idSet(nil, list)
		} else {
			reachable[key.Level] = idSet(reachable[key.Level], list)
		}
	}
}

// supersedes reports whether a newer ticket is pending for key itself
func (s *Session) supersedes(key LevelKey, ticket GenerationTicket) bool {
	pending, ok := s.pending[GenerationScope{Level: key.Level, Parent: key.Parent}.Key()]
	return ok && pending.Sequence > ticket.Sequence
}

func idSet(set map[valueobjects.NodeID]struct{}, list []*entities.Node) map[valueobjects.NodeID]struct{} {
	if set == nil {
		set = make(map[valueobjects.NodeID]struct{}, len(list))
	}
	for _, n := range list {
		set[n.ID()] = struct{}{}
	}
	return set
}

// Events

func (s *Session) addEvent(event events.DomainEvent) {
	s.events = append(s.events, event)
}

// GetUncommittedEvents returns events raised since the last commit
func (s *Session) GetUncommittedEvents() []events.DomainEvent {
	return s.events
}

// MarkEventsAsCommitted clears the pending events
func (s *Session) MarkEventsAsCommitted() {
	s.events = []events.DomainEvent{}
}

// MarkPersisted records a successful save at Version()+1
func (s *Session) MarkPersisted() {
	s.version++
	s.changed = false
}

// HasChanges reports whether the session changed or raised events since
// it was loaded or last persisted.
func (s *Session) HasChanges() bool {
	return s.changed || len(s.events) > 0
}

func (s *Session) touch() {
	s.updatedAt = timeNow()
	s.changed = true
}

// Persistence

// SessionSnapshot is the persisted form of a session
type SessionSnapshot struct {
	ID            string             `json:"id" dynamodbav:"session_id"`
	UserID        string             `json:"userId" dynamodbav:"user_id"`
	TreeID        string             `json:"treeId,omitempty" dynamodbav:"tree_id,omitempty"`
	Query         string             `json:"query,omitempty" dynamodbav:"query,omitempty"`
	Mode          string             `json:"mode" dynamodbav:"mode"`
	Levels        []LevelEntry       `json:"levels" dynamodbav:"levels"`
	Path          []string           `json:"path" dynamodbav:"path"`
	History       [][]string         `json:"history" dynamodbav:"history"`
	HistoryCursor int                `json:"historyCursor" dynamodbav:"history_cursor"`
	GenerationSeq uint64             `json:"generationSeq" dynamodbav:"generation_seq"`
	EditRevision  uint64             `json:"editRevision" dynamodbav:"edit_revision"`
	Pending       []GenerationTicket `json:"pending,omitempty" dynamodbav:"pending,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" dynamodbav:"updated_at"`
	Version       int                `json:"version" dynamodbav:"version"`
}

// Snapshot captures the session state. Observers and uncommitted events
// are not part of it.
func (s *Session) Snapshot() SessionSnapshot {
	entries := s.history.Entries()
	history := make([][]string, len(entries))
	for i, p := range entries {
		history[i] = p.Strings()
	}

	return SessionSnapshot{
		ID:            s.id.String(),
		UserID:        s.userID,
		TreeID:        s.treeID.String(),
		Query:         s.query,
		Mode:          s.mode.String(),
		Levels:        s.store.Snapshot(),
		Path:          s.selection.Path().Strings(),
		History:       history,
		HistoryCursor: s.history.Cursor(),
		GenerationSeq: s.generationSeq,
		EditRevision:  s.store.Revision(),
		Pending:       s.Pending(),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
		Version:       s.version,
	}
}

// RestoreSession rebuilds a session from a snapshot without raising events
func RestoreSession(snap SessionSnapshot, cfg *config.DomainConfig) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	id, err := valueobjects.ParseSessionID(snap.ID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	mode, err := valueobjects.ParseGenerationMode(snap.Mode)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	store, err := RestoreLevelStore(cfg, snap.Levels)
	if err != nil {
		return nil, err
	}
	store.carryRevision(snap.EditRevision)
	path, err := valueobjects.PathFromStrings(snap.Path...)
	if err != nil {
		return nil, invalidPath(err)
	}

	entries := make([]valueobjects.Path, 0, len(snap.History))
	for _, raw := range snap.History {
		p, err := valueobjects.PathFromStrings(raw...)
		if err != nil {
			return nil, invalidPath(err)
		}
		entries = append(entries, p)
	}
	history, err := RestoreHistory(entries, snap.HistoryCursor, cfg.MaxHistoryEntries)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]GenerationTicket, len(snap.Pending))
	for _, t := range snap.Pending {
		pending[t.Scope] = t
	}

	s := &Session{
		id:            id,
		userID:        snap.UserID,
		treeID:        valueobjects.TreeID(snap.TreeID),
		query:         snap.Query,
		mode:          mode,
		cfg:           cfg,
		store:         store,
		history:       history,
		generationSeq: snap.GenerationSeq,
		pending:       pending,
		createdAt:     snap.CreatedAt,
		updatedAt:     snap.UpdatedAt,
		version:       snap.Version,
		events:        []events.DomainEvent{},
	}
	s.attachSelection(path)
	return s, nil
}
