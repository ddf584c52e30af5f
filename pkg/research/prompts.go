package research

import (
	"fmt"
	"strings"
)

const planSystemPrompt = `You are a research planner.
Break the topic down into exactly 5 web search queries and exactly 5 analyses.
Give every search and analysis a priority from 1 (most important) to 5.
Queries must be specific and complementary, analyses must build on the search results.`

const analysisSystemPrompt = `You are a research analyst.
Analyze the search results below from the perspective you are given.
Every finding needs evidence taken from the results, a confidence between 0 and 1,
and the URLs of the results that support it. Only cite URLs that appear in the results.`

const reportSystemPrompt = `You are a research writer.
Write a comprehensive markdown report from the research material provided.
Cite sources inline as [n], where n is the number of the source in the numbered source list.
Only use numbers from that list. End the report with a "## References" section that lists
every cited source as "[n] Title - URL".`

func planPrompt(topic string) string {
	return fmt.Sprintf("Topic: %s", topic)
}

// corpus renders the accumulated search results for the analysis and report prompts.
func (e *Engine) corpus(searches []searchOutcome) string {
	var sb strings.Builder
	for i, s := range searches {
		fmt.Fprintf(&sb, "### Search %d: %s\n", i+1, s.spec.Query)
		if len(s.results) == 0 {
			sb.WriteString("No results.\n\n")
			continue
		}
		for _, r := range s.results {
			fmt.Fprintf(&sb, "- Title: %s\n  URL: %s\n  Content: %s\n", r.Title, r.URL, e.excerpt(r.Content))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func analysisPrompt(topic string, spec AnalysisSpec, corpus string) string {
	return fmt.Sprintf(`Topic: %s
Analysis type: %s
Analysis goal: %s

Search results:
%s`, topic, spec.Type, spec.Description, corpus)
}

func reportPrompt(topic, corpus string, analyses []analysisOutcome, sources []Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n\n## Search results\n%s\n## Analyses\n", topic, corpus)
	for _, a := range analyses {
		fmt.Fprintf(&sb, "### %s\n%s\n", a.spec.Type, a.spec.Description)
		for _, f := range a.result.Findings {
			fmt.Fprintf(&sb, "- %s (confidence %.2f)\n  Evidence: %s\n", f.Insight, f.Confidence, f.Evidence)
		}
		if len(a.result.Implications) > 0 {
			fmt.Fprintf(&sb, "Implications: %s\n", strings.Join(a.result.Implications, "; "))
		}
		if len(a.result.Limitations) > 0 {
			fmt.Fprintf(&sb, "Limitations: %s\n", strings.Join(a.result.Limitations, "; "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Numbered sources\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "[%d] %s - %s\n", i+1, s.Title, s.URL)
	}
	return sb.String()
}
