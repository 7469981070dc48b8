package siren

import "sort"

// Set is an unordered collection of identifiers.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil set contains nothing.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LockedSirens is the subset of sirens protected from modification while a
// strict-mode session is active. Only lockable categories are represented.
type LockedSirens struct {
	Android  Set
	Websites Set
	Keywords Set
}

// Platform categories outside this set are never lockable.
var lockable = map[Category]struct{}{
	CategoryAndroid:  {},
	CategoryWebsites: {},
	CategoryKeywords: {},
}

// IsLockable reports whether sirens of category c can be locked.
func IsLockable(c Category) bool {
	_, ok := lockable[c]
	return ok
}

// Lock restricts s to the lockable categories.
func Lock(s Sirens) LockedSirens {
	return LockedSirens{
		Android:  NewSet(s.IDs(CategoryAndroid)...),
		Websites: NewSet(s.Websites...),
		Keywords: NewSet(s.Keywords...),
	}
}

// IsLocked reports whether id in category c is locked. A nil locked view means
// no strict-mode session is active (or lock state is not loaded yet).
func IsLocked(locked *LockedSirens, c Category, id string) bool {
	if locked == nil || !IsLockable(c) {
		return false
	}
	return locked.set(c).Has(id)
}

// Len returns the number of locked identifiers across categories.
func (l *LockedSirens) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Android) + len(l.Websites) + len(l.Keywords)
}

// MarshalView returns a sorted, serializable view of the locked sets.
func (l *LockedSirens) MarshalView() map[Category][]string {
	if l == nil {
		return nil
	}
	return map[Category][]string{
		CategoryAndroid:  l.Android.Sorted(),
		CategoryWebsites: l.Websites.Sorted(),
		CategoryKeywords: l.Keywords.Sorted(),
	}
}

func (l *LockedSirens) set(c Category) Set {
	switch c {
	case CategoryAndroid:
		return l.Android
	case CategoryWebsites:
		return l.Websites
	case CategoryKeywords:
		return l.Keywords
	default:
		return nil
	}
}
