// Package track defines the candidate match type shared by recognition
// providers, the aggregator, the session store, and the presentation layer.
//
// It lives in its own package so provider adapters under pkg/provider can
// produce candidates without importing any internal package.
package track

import (
	"slices"
	"strings"
)

// Well-known link provider names. Adapters may add others.
const (
	LinkSpotify    = "spotify"
	LinkAppleMusic = "apple_music"
	LinkYouTube    = "youtube"
	LinkSongLink   = "song_link"
)

// Candidate is one track match returned by a recognition provider. Every
// field is optional; an empty string means the provider did not report it.
type Candidate struct {
	// Title is the track title.
	Title string `json:"title,omitempty"`

	// Artist is the performing artist. Multiple artists are joined with ", ".
	Artist string `json:"artist,omitempty"`

	// Album is the album or release name.
	Album string `json:"album,omitempty"`

	// ReleaseDate is the release date exactly as the provider reported it
	// (usually "YYYY-MM-DD" or "YYYY").
	ReleaseDate string `json:"release_date,omitempty"`

	// Confidence is the provider's match score in the range [0, 100]. May be
	// zero if the provider does not report a score.
	Confidence float64 `json:"confidence,omitempty"`

	// Links maps a provider name (see the Link* constants) to a URL.
	Links map[string]string `json:"links,omitempty"`
}

// Valid reports whether c carries identifying information. A candidate
// without both title and artist never enters a result list.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.Title) != "" || strings.TrimSpace(c.Artist) != ""
}

// Key returns the normalized identity key used for deduplication:
// lower(artist) + "\x00" + lower(title).
func (c Candidate) Key() string {
	return strings.ToLower(c.Artist) + "\x00" + strings.ToLower(c.Title)
}

// LinkNames returns the link provider names of c in sorted order so that
// renderers produce stable output.
func (c Candidate) LinkNames() []string {
	names := make([]string, 0, len(c.Links))
	for name, url := range c.Links {
		if url != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Clone returns a deep copy of c.
func (c Candidate) Clone() Candidate {
	out := c
	if c.Links != nil {
		out.Links = make(map[string]string, len(c.Links))
		for k, v := range c.Links {
			out.Links[k] = v
		}
	}
	return out
}

// CloneAll returns a deep copy of list. A nil list yields nil.
func CloneAll(list []Candidate) []Candidate {
	if list == nil {
		return nil
	}
	out := make([]Candidate, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}
