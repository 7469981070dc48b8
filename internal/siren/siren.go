// Package siren defines blockable targets ("sirens") and the pure helpers that
// merge siren collections and answer strict-mode lock questions.
package siren

import (
	"fmt"
	"strings"
)

// Category partitions sirens by the kind of target they identify.
type Category string

const (
	CategoryAndroid  Category = "android"
	CategoryWindows  Category = "windows"
	CategoryMacOS    Category = "macos"
	CategoryIOS      Category = "ios"
	CategoryLinux    Category = "linux"
	CategoryWebsites Category = "websites"
	CategoryKeywords Category = "keywords"
)

var allCategories = []Category{
	CategoryAndroid,
	CategoryWindows,
	CategoryMacOS,
	CategoryIOS,
	CategoryLinux,
	CategoryWebsites,
	CategoryKeywords,
}

// Categories returns every category in canonical order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory normalizes s and returns the matching category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown siren category %q", s)
}

// AndroidApp identifies an Android application. PackageName is the identity key.
type AndroidApp struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Sirens holds one ordered collection per category.
type Sirens struct {
	Android  []AndroidApp `json:"android"`
	Windows  []string     `json:"windows"`
	MacOS    []string     `json:"macos"`
	IOS      []string     `json:"ios"`
	Linux    []string     `json:"linux"`
	Websites []string     `json:"websites"`
	Keywords []string     `json:"keywords"`
}

// Empty returns a Sirens value with every category present and empty.
func Empty() Sirens {
	return Sirens{
		Android:  []AndroidApp{},
		Windows:  []string{},
		MacOS:    []string{},
		IOS:      []string{},
		Linux:    []string{},
		Websites: []string{},
		Keywords: []string{},
	}
}

// IDs returns the identity keys of one category in order.
func (s Sirens) IDs(c Category) []string {
	if c == CategoryAndroid {
		ids := make([]string, 0, len(s.Android))
		for _, app := range s.Android {
			ids = append(ids, app.PackageName)
		}
		return ids
	}
	list := s.strings(c)
	if list == nil {
		return nil
	}
	out := make([]string, len(*list))
	copy(out, *list)
	return out
}

// Contains reports whether id is present in category c.
func (s Sirens) Contains(c Category, id string) bool {
	for _, existing := range s.IDs(c) {
		if existing == id {
			return true
		}
	}
	return false
}

// Find returns the first category holding id, scanning in canonical order.
func (s Sirens) Find(id string) (Category, bool) {
	for _, c := range allCategories {
		if s.Contains(c, id) {
			return c, true
		}
	}
	return "", false
}

// Len returns the total number of entries across all categories.
func (s Sirens) Len() int {
	n := len(s.Android)
	for _, c := range allCategories[1:] {
		n += len(*s.strings(c))
	}
	return n
}

// Add appends id to category c unless an entry with the same key exists.
// It reports whether the entry was added.
func (s *Sirens) Add(c Category, id string) bool {
	if s.Contains(c, id) {
		return false
	}
	if c == CategoryAndroid {
		s.Android = append(s.Android, AndroidApp{PackageName: id})
		return true
	}
	list := s.strings(c)
	if list == nil {
		return false
	}
	*list = append(*list, id)
	return true
}

func (s *Sirens) strings(c Category) *[]string {
	switch c {
	case CategoryWindows:
		return &s.Windows
	case CategoryMacOS:
		return &s.MacOS
	case CategoryIOS:
		return &s.IOS
	case CategoryLinux:
		return &s.Linux
	case CategoryWebsites:
		return &s.Websites
	case CategoryKeywords:
		return &s.Keywords
	default:
		return nil
	}
}
