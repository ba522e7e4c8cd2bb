package recognize

import "github.com/MrWong99/tunetrace/pkg/track"

// Merge flattens per-segment candidate lists in segment order, then
// candidate order, drops candidates without title and artist, and removes
// duplicates by normalized artist/title key. The first occurrence of a key
// wins, even when a later duplicate reports a higher confidence.
//
// The result is never nil; it is deep-copied from the input.
func Merge(perSegment [][]track.Candidate) []track.Candidate {
	out := []track.Candidate{}
	seen := make(map[string]struct{})
	for _, list := range perSegment {
		for _, c := range list {
			if !c.Valid() {
				continue
			}
			key := c.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c.Clone())
		}
	}
	return out
}
