package core

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tiedsiren/tiedsiren/internal/db"
)

// maxSuggestDistance bounds how different a name may be and still be offered.
const maxSuggestDistance = 3

// SuggestBlocklist returns the stored blocklist name closest to ref, or "" when
// none is close enough.
func SuggestBlocklist(dbConn *db.DB, ref string) string {
	lists, err := dbConn.ListBlocklists()
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(lists))
	for _, b := range lists {
		names = append(names, b.Name)
	}
	return closest(ref, names)
}

func closest(ref string, candidates []string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return ""
	}
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(ref, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
