package siren

// Merge combines sources into one aggregate. For each category the entries are
// taken in input order and deduplicated by key; the first occurrence wins.
// Every category of the result is non-nil, even when all sources are empty.
func Merge(sources ...Sirens) Sirens {
	out := Empty()

	seenApps := make(map[string]struct{})
	for _, src := range sources {
		for _, app := range src.Android {
			if _, ok := seenApps[app.PackageName]; ok {
				continue
			}
			seenApps[app.PackageName] = struct{}{}
			out.Android = append(out.Android, app)
		}
	}

	for _, c := range allCategories[1:] {
		dst := out.strings(c)
		seen := make(map[string]struct{})
		for _, src := range sources {
			for _, v := range *src.strings(c) {
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				*dst = append(*dst, v)
			}
		}
	}

	return out
}
