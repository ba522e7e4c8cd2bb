package navigator

import (
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/track"
)

func newNavigator(t *testing.T, mode Mode) *Navigator {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return New(session.NewStore(session.Config{}, session.WithMetrics(m)), mode)
}

func items(titles ...string) []track.Candidate {
	out := make([]track.Candidate, len(titles))
	for i, title := range titles {
		out[i] = track.Candidate{Artist: "Band", Title: title}
	}
	return out
}

func title(rs RenderState) string {
	if rs.Item == nil {
		return "<nil>"
	}
	return rs.Item.Title
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeManual, false},
		{"manual", ModeManual, false},
		{"Sequential", ModeSequential, false},
		{" sequential ", ModeSequential, false},
		{"random", ModeManual, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()
	for _, a := range []Action{ActionCurrent, ActionPrev, ActionNext, ActionShowAll, ActionClose, ActionNewSearch} {
		if got, err := ParseAction(string(a)); err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("jump"); err == nil {
		t.Error("ParseAction(jump) should fail")
	}
}

func TestStart_NoResultsCreatesNothing(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)

	rs := n.Start("chan", nil)
	if rs.Notice != NoticeNoMatches || rs.Item != nil {
		t.Errorf("Start(nil) = %+v, want no-match notice", rs)
	}
	if _, err := n.Current("chan"); !errors.Is(err, session.ErrAbsent) {
		t.Errorf("Current err = %v, want ErrAbsent", err)
	}
}

func TestStart_RendersFirst(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)

	rs := n.Start("chan", items("A", "B", "C"))
	if title(rs) != "A" || rs.Index != 0 || rs.Total != 3 {
		t.Errorf("Start = %s %d/%d, want A 0/3", title(rs), rs.Index, rs.Total)
	}
	if rs.CanPrev || !rs.CanNext || !rs.CanShowAll {
		t.Errorf("controls = prev %v next %v all %v", rs.CanPrev, rs.CanNext, rs.CanShowAll)
	}
	if rs.Position() != "1 of 3" {
		t.Errorf("Position = %q, want 1 of 3", rs.Position())
	}
}

func TestManual_Boundaries(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)
	n.Start("chan", items("A", "B"))

	rs, err := n.Prev("chan")
	if err != nil {
		t.Fatalf("Prev: %v", err)
	}
	if title(rs) != "A" || rs.Notice != NoticeFirst {
		t.Errorf("Prev at start = %s %q", title(rs), rs.Notice)
	}

	rs, _ = n.Next("chan")
	if title(rs) != "B" || rs.Notice != "" || rs.CanNext || !rs.CanPrev {
		t.Errorf("Next = %s %q next=%v prev=%v", title(rs), rs.Notice, rs.CanNext, rs.CanPrev)
	}

	rs, _ = n.Next("chan")
	if title(rs) != "B" || rs.Notice != NoticeLast || rs.Exhausted {
		t.Errorf("Next at end = %s %q exhausted=%v", title(rs), rs.Notice, rs.Exhausted)
	}

	rs, _ = n.Prev("chan")
	if title(rs) != "A" || rs.Notice != "" {
		t.Errorf("Prev = %s %q", title(rs), rs.Notice)
	}
}

func TestSequential_Exhausts(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeSequential)
	n.Start("chan", items("A", "B"))

	rs, _ := n.Next("chan")
	if title(rs) != "B" || rs.Exhausted {
		t.Fatalf("Next = %s exhausted=%v", title(rs), rs.Exhausted)
	}

	rs, _ = n.Next("chan")
	if !rs.Exhausted || rs.Item != nil || rs.Notice != NoticeAllShown {
		t.Errorf("Next at end = %+v, want exhausted with notice", rs)
	}
	if rs.CanNext || !rs.CanPrev || rs.Position() != "" {
		t.Errorf("exhausted controls = next %v prev %v pos %q", rs.CanNext, rs.CanPrev, rs.Position())
	}

	rs, _ = n.Next("chan")
	if !rs.Exhausted || rs.Notice != NoticeAllShown {
		t.Errorf("Next while exhausted = %+v", rs)
	}

	rs, _ = n.Prev("chan")
	if title(rs) != "B" || rs.Exhausted {
		t.Errorf("Prev from exhausted = %s exhausted=%v, want B", title(rs), rs.Exhausted)
	}
}

func TestShowAll_KeepsCursor(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)
	n.Start("chan", items("A", "B", "C"))
	_, _ = n.Next("chan")

	rs, err := n.ShowAll("chan")
	if err != nil {
		t.Fatalf("ShowAll: %v", err)
	}
	if len(rs.All) != 3 || rs.All[0].Title != "A" || rs.All[2].Title != "C" {
		t.Errorf("All = %v", rs.All)
	}
	if rs.Index != 1 {
		t.Errorf("Index = %d, want 1", rs.Index)
	}

	cur, _ := n.Current("chan")
	if cur.Index != 1 || cur.All != nil {
		t.Errorf("Current after ShowAll = index %d all %v", cur.Index, cur.All)
	}
}

func TestCloseAndNewSearch(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)
	n.Start("chan", items("A", "B"))
	_, _ = n.Next("chan")

	rs, err := n.Close("chan")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !rs.Closed || rs.NewSearch || rs.Index != 1 {
		t.Errorf("Close = %+v", rs)
	}

	rs, _ = n.NewSearch("chan")
	if !rs.Closed || !rs.NewSearch {
		t.Errorf("NewSearch = %+v", rs)
	}

	// Neither changes the session.
	cur, err := n.Current("chan")
	if err != nil || cur.Index != 1 {
		t.Errorf("Current = %d, %v; want 1", cur.Index, err)
	}
}

func TestApply_Absent(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)

	for _, a := range []Action{ActionCurrent, ActionPrev, ActionNext, ActionShowAll, ActionClose, ActionNewSearch} {
		if _, err := n.Apply("ghost", a); !errors.Is(err, session.ErrAbsent) {
			t.Errorf("Apply(%s) err = %v, want ErrAbsent", a, err)
		}
	}
	if _, err := n.Apply("ghost", Action("jump")); err == nil {
		t.Error("Apply(jump) should fail")
	}
}

func TestStart_SupersedesPrevious(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)

	first := n.Start("chan", items("A", "B", "C"))
	_, _ = n.Next("chan")
	second := n.Start("chan", items("X"))

	if second.Generation <= first.Generation {
		t.Errorf("generation %d -> %d did not increase", first.Generation, second.Generation)
	}
	cur, _ := n.Current("chan")
	if title(cur) != "X" || cur.Total != 1 || cur.CanNext {
		t.Errorf("Current after supersede = %s total %d", title(cur), cur.Total)
	}
}

func TestManual_ConcurrentNextNeverPassesLast(t *testing.T) {
	t.Parallel()
	n := newNavigator(t, ModeManual)
	n.Start("chan", items("A", "B", "C"))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := n.Next("chan")
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			if rs.Item == nil || rs.Exhausted {
				t.Errorf("manual Next produced %+v", rs)
			}
		}()
	}
	wg.Wait()

	cur, _ := n.Current("chan")
	if title(cur) != "C" {
		t.Errorf("final item = %s, want C", title(cur))
	}
}
