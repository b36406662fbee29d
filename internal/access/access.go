// Package access decides which world journal entries a reader may see.
package access

import "sort"

// Everyone is implicitly held by every character.
const Everyone = "everyone"

// TagSet is an unordered set of visibility tags.
type TagSet map[string]struct{}

func NewTagSet(tags ...string) TagSet {
	set := make(TagSet, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the members in lexical order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Effective returns the assigned tags plus Everyone, without duplicates,
// keeping the assigned order.
func Effective(assigned []string) []string {
	out := make([]string, 0, len(assigned)+1)
	seen := make(map[string]struct{}, len(assigned)+1)
	for _, t := range append(append([]string(nil), assigned...), Everyone) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Audience is the reader of a journal view: staff see everything, players see
// entries sharing at least one tag with their effective tag set.
type Audience struct {
	staff bool
	tags  TagSet
}

// Staff is the unfiltered audience.
func Staff() Audience { return Audience{staff: true} }

// Player builds a filtered audience from a character's assigned tags.
func Player(assigned []string) Audience {
	return Audience{tags: NewTagSet(Effective(assigned)...)}
}

func (a Audience) IsStaff() bool { return a.staff }

// CanSee reports whether an entry carrying entryTags is visible.
func (a Audience) CanSee(entryTags []string) bool {
	if a.staff {
		return true
	}
	for _, t := range entryTags {
		if t == Everyone || a.tags.Has(t) {
			return true
		}
	}
	return false
}
