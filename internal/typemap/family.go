package typemap

import "strings"

// families lists the sub-fields a reported field can be expanded into.
// Sub-fields are never reported by discovery; they exist only as series
// types.
var families = map[string][]string{
	"temperature":   {"min_temp", "max_temp"},
	"humidity":      {"min_hum", "max_hum"},
	"pressure":      {"min_pressure", "max_pressure"},
	"guststrength":  {"max_gust"},
	"gust_strength": {"max_gust"},
	"rain":          {"sum_rain"},
}

// ExpandFields filters the fields a module reports down to the requested
// ones. A reported family field also selects those of its sub-fields that are
// explicitly requested, so requesting "temperature" and "max_temp" on a
// temperature module yields both. An empty request selects every reported
// field and no sub-fields. Order follows reported, sub-fields directly after
// their family field; duplicates are removed.
func ExpandFields(reported, requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, f := range requested {
		want[normalize(f)] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	for _, r := range reported {
		name := normalize(r)
		if len(want) == 0 {
			add(name)
			continue
		}
		if want[name] {
			add(name)
		}
		for _, sub := range families[name] {
			if want[sub] {
				add(sub)
			}
		}
	}
	return out
}

func normalize(f string) string {
	return strings.ToLower(strings.TrimSpace(f))
}
