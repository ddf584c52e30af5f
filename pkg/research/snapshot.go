package research

import (
	"net/url"
	"strings"
	"time"
)

// LinkRecord is one resolved link of a search, or one key source of an analysis.
type LinkRecord struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Relevance float64   `json:"relevance"`
	Domain    string    `json:"domain"`
	FoundAt   time.Time `json:"found_at"`
}

type SearchLinkRecord struct {
	Query       string       `json:"query"`
	Priority    int          `json:"priority"`
	Links       []LinkRecord `json:"links"`
	Status      StepStatus   `json:"status"`
	ResultCount int          `json:"result_count"`
}

type AnalysisLinkRecord struct {
	Type          string       `json:"type"`
	Description   string       `json:"description"`
	KeySources    []LinkRecord `json:"key_sources"`
	FindingsCount int          `json:"findings_count"`
	Status        StepStatus   `json:"status"`
}

// ResearchSnapshot is the durable, append-only state of a run. The With*
// methods return a new snapshot and leave the receiver untouched, so a value
// handed to a store is never changed behind its back.
type ResearchSnapshot struct {
	PlanID         string               `json:"plan_id"`
	CreatedAt      time.Time            `json:"created_at"`
	Searches       []SearchLinkRecord   `json:"searches"`
	Analyses       []AnalysisLinkRecord `json:"analyses"`
	TotalLinks     int                  `json:"total_links"`
	UniqueDomains  []string             `json:"unique_domains"`
	CompletionRate int                  `json:"completion_rate"`
}

func NewSnapshot(planID string, now time.Time) ResearchSnapshot {
	return ResearchSnapshot{
		PlanID:        planID,
		CreatedAt:     now,
		Searches:      []SearchLinkRecord{},
		Analyses:      []AnalysisLinkRecord{},
		UniqueDomains: []string{},
	}
}

// Clone returns a deep copy.
func (s ResearchSnapshot) Clone() ResearchSnapshot {
	out := s
	out.Searches = make([]SearchLinkRecord, len(s.Searches))
	for i, rec := range s.Searches {
		rec.Links = append([]LinkRecord{}, rec.Links...)
		out.Searches[i] = rec
	}
	out.Analyses = make([]AnalysisLinkRecord, len(s.Analyses))
	for i, rec := range s.Analyses {
		rec.KeySources = append([]LinkRecord{}, rec.KeySources...)
		out.Analyses[i] = rec
	}
	out.UniqueDomains = append([]string{}, s.UniqueDomains...)
	return out
}

// WithSearch appends a search record and folds its links into the totals.
func (s ResearchSnapshot) WithSearch(rec SearchLinkRecord) ResearchSnapshot {
	out := s.Clone()
	rec.Links = append([]LinkRecord{}, rec.Links...)
	out.Searches = append(out.Searches, rec)
	out.TotalLinks += len(rec.Links)
	out.UniqueDomains = mergeDomains(out.UniqueDomains, rec.Links)
	return out
}

// WithAnalysis appends an analysis record. Key source domains count towards
// UniqueDomains but not towards TotalLinks, which only sums search links.
func (s ResearchSnapshot) WithAnalysis(rec AnalysisLinkRecord) ResearchSnapshot {
	out := s.Clone()
	rec.KeySources = append([]LinkRecord{}, rec.KeySources...)
	out.Analyses = append(out.Analyses, rec)
	out.UniqueDomains = mergeDomains(out.UniqueDomains, rec.KeySources)
	return out
}

// WithCompletionRate raises the completion rate. It never lowers it.
func (s ResearchSnapshot) WithCompletionRate(rate int) ResearchSnapshot {
	out := s.Clone()
	rate = clampPercent(rate)
	if rate > out.CompletionRate {
		out.CompletionRate = rate
	}
	return out
}

// IsEmpty reports whether there is nothing to reconstruct from.
func (s ResearchSnapshot) IsEmpty() bool {
	return len(s.Searches) == 0 && len(s.Analyses) == 0
}

// CountLinks sums the links over all search records.
func (s ResearchSnapshot) CountLinks() int {
	n := 0
	for _, rec := range s.Searches {
		n += len(rec.Links)
	}
	return n
}

func mergeDomains(domains []string, links []LinkRecord) []string {
	seen := make(map[string]bool, len(domains))
	for _, d := range domains {
		seen[d] = true
	}
	for _, l := range links {
		if l.Domain == "" || seen[l.Domain] {
			continue
		}
		seen[l.Domain] = true
		domains = append(domains, l.Domain)
	}
	return domains
}

// DomainOf returns the host of rawURL without a leading "www.".
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func clampPercent(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
