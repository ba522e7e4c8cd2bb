package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tunetrace/internal/history"
	"github.com/MrWong99/tunetrace/internal/navigator"
	"github.com/MrWong99/tunetrace/pkg/track"
)

func buttons(t *testing.T, comps []discordgo.MessageComponent) map[string]discordgo.Button {
	t.Helper()
	out := map[string]discordgo.Button{}
	for _, c := range comps {
		row, ok := c.(discordgo.ActionsRow)
		if !ok {
			t.Fatalf("component %T is not an ActionsRow", c)
		}
		for _, rc := range row.Components {
			b := rc.(discordgo.Button)
			out[b.CustomID] = b
		}
	}
	return out
}

func TestTrackMessage(t *testing.T) {
	t.Parallel()

	item := &track.Candidate{
		Title: "Around the World", Artist: "Daft Punk", Album: "Homework",
		ReleaseDate: "1997-01-20", Confidence: 98,
		Links: map[string]string{
			track.LinkSpotify: "https://open.spotify.com/track/x",
			"deezer":          "https://deezer.com/x",
		},
	}
	msg := TrackMessage(navigator.RenderState{
		Item: item, Index: 1, Total: 3, CanPrev: true, CanNext: true, CanShowAll: true,
	})

	if len(msg.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(msg.Embeds))
	}
	e := msg.Embeds[0]
	if e.Title != "Around the World" || e.Description != "by **Daft Punk**" || e.Footer.Text != "Match 2 of 3" {
		t.Errorf("embed = %+v", e)
	}
	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Album"] != "Homework" || fields["Released"] != "1997-01-20" || fields["Confidence"] != "98%" {
		t.Errorf("fields = %v", fields)
	}
	if fields["Listen"] != "[deezer](https://deezer.com/x) · [Spotify](https://open.spotify.com/track/x)" {
		t.Errorf("links = %q", fields["Listen"])
	}

	b := buttons(t, msg.Components)
	if len(b) != 6 {
		t.Fatalf("buttons = %d, want 6", len(b))
	}
	if b[positionButtonID].Label != "2 of 3" || !b[positionButtonID].Disabled {
		t.Errorf("position button = %+v", b[positionButtonID])
	}
	if b[ButtonID(navigator.ActionPrev)].Disabled || b[ButtonID(navigator.ActionNext)].Disabled {
		t.Error("prev/next should be enabled mid-list")
	}
}

func TestTrackMessage_States(t *testing.T) {
	t.Parallel()

	t.Run("no confidence or links", func(t *testing.T) {
		t.Parallel()
		msg := TrackMessage(navigator.RenderState{Item: &track.Candidate{Artist: "Anon"}, Total: 1, CanShowAll: true})
		e := msg.Embeds[0]
		if e.Title != "Anon" || e.Description != "" || len(e.Fields) != 0 {
			t.Errorf("artist-only embed = %+v, want the artist as heading and nothing else", e)
		}
		b := buttons(t, msg.Components)
		if !b[ButtonID(navigator.ActionPrev)].Disabled || !b[ButtonID(navigator.ActionNext)].Disabled {
			t.Error("single item should disable prev and next")
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()
		msg := TrackMessage(navigator.RenderState{
			Index: 2, Total: 2, Exhausted: true, Notice: navigator.NoticeAllShown, CanPrev: true, CanShowAll: true,
		})
		if msg.Content != navigator.NoticeAllShown || msg.Embeds[0].Title != "All results shown" {
			t.Errorf("msg = %+v", msg)
		}
		if b := buttons(t, msg.Components); b[positionButtonID].Label != "2 of 2" {
			t.Errorf("position label = %q", b[positionButtonID].Label)
		}
	})

	t.Run("closed", func(t *testing.T) {
		t.Parallel()
		msg := TrackMessage(navigator.RenderState{Item: &track.Candidate{Title: "T"}, Total: 1, Closed: true})
		if msg.Components != nil || len(msg.Embeds) != 1 {
			t.Errorf("closed msg = %+v", msg)
		}
	})

	t.Run("new search", func(t *testing.T) {
		t.Parallel()
		msg := TrackMessage(navigator.RenderState{Item: &track.Candidate{Title: "T"}, Total: 1, Closed: true, NewSearch: true})
		if msg.Components != nil || !strings.Contains(msg.Content, "/identify") {
			t.Errorf("new search msg = %+v", msg)
		}
	})
}

func TestAllTracksMessage(t *testing.T) {
	t.Parallel()
	msg := AllTracksMessage(navigator.RenderState{All: []track.Candidate{
		{Title: "One", Artist: "A"},
		{Title: "Two", Artist: "B", Album: "LP"},
		{Artist: "Solo", Album: "EP"},
	}})
	e := msg.Embeds[0]
	if e.Title != "All matches (3)" {
		t.Errorf("title = %q", e.Title)
	}
	want := "1. **One** by A\n2. **Two** by B (LP)\n3. **Solo** (EP)\n"
	if e.Description != want {
		t.Errorf("description = %q, want %q", e.Description, want)
	}
	if msg.Components != nil {
		t.Error("show all list should carry no buttons")
	}
}

func TestAllTracksMessage_Truncates(t *testing.T) {
	t.Parallel()
	all := make([]track.Candidate, 500)
	for i := range all {
		all[i] = track.Candidate{Title: strings.Repeat("t", 40), Artist: "a"}
	}
	msg := AllTracksMessage(navigator.RenderState{All: all})
	if n := len(msg.Embeds[0].Description); n > maxDescription {
		t.Errorf("description length %d exceeds %d", n, maxDescription)
	}
}

func TestHistoryMessage(t *testing.T) {
	t.Parallel()

	if msg := HistoryMessage(nil); len(msg.Embeds) != 0 || msg.Content == "" {
		t.Errorf("empty history = %+v", msg)
	}

	at := time.Unix(1_700_000_000, 0)
	msg := HistoryMessage([]history.Entry{
		{RequestedAt: at, Outcome: history.OutcomeMatch, Tracks: []track.Candidate{{Title: "X", Artist: "Y"}, {Title: "Z"}}},
		{RequestedAt: at, Outcome: history.OutcomeNoMatch},
	})
	want := "<t:1700000000:R> **X** by Y (+1 more)\n<t:1700000000:R> no matches\n"
	if got := msg.Embeds[0].Description; got != want {
		t.Errorf("description = %q, want %q", got, want)
	}
}
