// Package navigator implements paging over the recognition results of a
// session: the prev/next/show-all/close/new-search transitions and the
// render state the chat host draws from.
//
// The navigator keeps no state of its own. Every transition is a single
// atomic [session.Store] operation, so concurrent button presses on the same
// channel never observe a half-applied move.
package navigator

import (
	"fmt"
	"strings"

	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// Mode selects how Next behaves at the end of the list.
type Mode int

const (
	// ModeManual stops at the last item.
	ModeManual Mode = iota
	// ModeSequential walks one past the last item into an exhausted state.
	ModeSequential
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeSequential:
		return "sequential"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "manual" or "sequential". The empty string is manual.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ModeManual, nil
	case "sequential":
		return ModeSequential, nil
	default:
		return ModeManual, fmt.Errorf("navigator: unknown mode %q", s)
	}
}

// Action is a navigation request from the presentation layer.
type Action string

const (
	ActionCurrent   Action = "current"
	ActionPrev      Action = "prev"
	ActionNext      Action = "next"
	ActionShowAll   Action = "show_all"
	ActionClose     Action = "close"
	ActionNewSearch Action = "new_search"
)

// ParseAction validates a raw action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCurrent, ActionPrev, ActionNext, ActionShowAll, ActionClose, ActionNewSearch:
		return a, nil
	default:
		return "", fmt.Errorf("navigator: unknown action %q", s)
	}
}

// Boundary notices.
const (
	NoticeFirst     = "already at first item"
	NoticeLast      = "already at last item"
	NoticeAllShown  = "all items shown"
	NoticeNoMatches = "no matches found"
)

// RenderState is everything the presentation layer needs to draw a session.
type RenderState struct {
	// Item is the candidate under the cursor; nil when exhausted or when
	// Start found nothing.
	Item *track.Candidate
	// Index is the 0-based cursor.
	Index int
	Total int

	Exhausted bool
	// Notice is a human-readable message for boundary no-ops.
	Notice string

	CanPrev    bool
	CanNext    bool
	CanShowAll bool

	// All holds every result in order; only set by ShowAll.
	All []track.Candidate

	// Closed asks the presentation layer to drop the navigation controls.
	Closed bool
	// NewSearch additionally asks it to prompt for a new upload.
	NewSearch bool

	Generation uint64
}

// Position returns the 1-based "k of n" label, or "" when nothing is shown.
func (r RenderState) Position() string {
	if r.Item == nil || r.Total == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d", r.Index+1, r.Total)
}

// Navigator applies transitions to sessions in a [session.Store].
type Navigator struct {
	store *session.Store
	mode  Mode
}

// New creates a [Navigator] over store.
func New(store *session.Store, mode Mode) *Navigator {
	return &Navigator{store: store, mode: mode}
}

// Mode returns the configured mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Start installs results as the session of id and renders its first item.
// With no results it creates nothing and reports no match.
func (n *Navigator) Start(id session.Identity, results []track.Candidate) RenderState {
	if len(results) == 0 {
		return RenderState{Notice: NoticeNoMatches}
	}
	return n.render(n.store.Put(id, results), "")
}

// Current renders the session without moving the cursor.
func (n *Navigator) Current(id session.Identity) (RenderState, error) {
	snap, err := n.store.Get(id)
	if err != nil {
		return RenderState{}, err
	}
	return n.render(snap, ""), nil
}

// Prev moves one item back. From the exhausted state it returns to the last
// item.
func (n *Navigator) Prev(id session.Identity) (RenderState, error) {
	snap, moved, err := n.store.Advance(id, -1)
	if err != nil {
		return RenderState{}, err
	}
	notice := ""
	if !moved {
		notice = NoticeFirst
	}
	return n.render(snap, notice), nil
}

// Next moves one item forward. In manual mode it stops at the last item; in
// sequential mode it moves past it into the exhausted state.
func (n *Navigator) Next(id session.Identity) (RenderState, error) {
	var (
		snap  session.Snapshot
		moved bool
		err   error
	)
	if n.mode == ModeSequential {
		snap, moved, err = n.store.Advance(id, 1)
	} else {
		snap, moved, err = n.store.AdvanceWithin(id, 1, 1)
	}
	if err != nil {
		return RenderState{}, err
	}

	notice := ""
	switch {
	case snap.Exhausted():
		notice = NoticeAllShown
	case !moved:
		notice = NoticeLast
	}
	return n.render(snap, notice), nil
}

// ShowAll renders every result without moving the cursor.
func (n *Navigator) ShowAll(id session.Identity) (RenderState, error) {
	snap, err := n.store.Get(id)
	if err != nil {
		return RenderState{}, err
	}
	rs := n.render(snap, "")
	rs.All = snap.Results
	return rs, nil
}

// Close renders the session with the navigation controls dropped.
func (n *Navigator) Close(id session.Identity) (RenderState, error) {
	rs, err := n.Current(id)
	if err != nil {
		return RenderState{}, err
	}
	rs.Closed = true
	return rs, nil
}

// NewSearch is Close plus a prompt for a new upload.
func (n *Navigator) NewSearch(id session.Identity) (RenderState, error) {
	rs, err := n.Close(id)
	if err != nil {
		return RenderState{}, err
	}
	rs.NewSearch = true
	return rs, nil
}

// Apply dispatches a parsed [Action].
func (n *Navigator) Apply(id session.Identity, a Action) (RenderState, error) {
	switch a {
	case ActionCurrent:
		return n.Current(id)
	case ActionPrev:
		return n.Prev(id)
	case ActionNext:
		return n.Next(id)
	case ActionShowAll:
		return n.ShowAll(id)
	case ActionClose:
		return n.Close(id)
	case ActionNewSearch:
		return n.NewSearch(id)
	default:
		return RenderState{}, fmt.Errorf("navigator: unknown action %q", a)
	}
}

func (n *Navigator) render(snap session.Snapshot, notice string) RenderState {
	total := snap.Len()
	rs := RenderState{
		Index:      snap.Cursor,
		Total:      total,
		Exhausted:  snap.Exhausted(),
		Notice:     notice,
		CanPrev:    snap.Cursor > 0,
		CanShowAll: true,
		Generation: snap.Generation,
	}
	if cur, ok := snap.Current(); ok {
		rs.Item = &cur
	}
	if n.mode == ModeSequential {
		rs.CanNext = snap.Cursor < total
	} else {
		rs.CanNext = snap.Cursor+1 < total
	}
	return rs
}
