package research

import "strings"

// CollectSources builds the citation list: every search link in plan order,
// then every analysis key source, deduplicated by URL. The first occurrence
// of a URL decides its title and relevance.
func CollectSources(snap ResearchSnapshot) []Source {
	seen := make(map[string]bool)
	sources := []Source{}
	add := func(l LinkRecord) {
		key := normalizeURL(l.URL)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		title := l.Title
		if strings.TrimSpace(title) == "" {
			title = l.URL
		}
		sources = append(sources, Source{Title: title, URL: l.URL, Relevance: l.Relevance})
	}
	for _, rec := range snap.Searches {
		for _, l := range rec.Links {
			add(l)
		}
	}
	for _, rec := range snap.Analyses {
		for _, l := range rec.KeySources {
			add(l)
		}
	}
	return sources
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}
