package research

import "google.golang.org/genai"

func int64Ptr(n int64) *int64       { return &n }
func float64Ptr(f float64) *float64 { return &f }

func prioritySchema() *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeInteger,
		Description: "Priority from 1 (most important) to 5",
		Minimum:     float64Ptr(1),
		Maximum:     float64Ptr(5),
	}
}

func unitSchema(desc string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeNumber,
		Description: desc,
		Minimum:     float64Ptr(0),
		Maximum:     float64Ptr(1),
	}
}

// PlanSchema constrains the planner to exactly five searches and five analyses.
func PlanSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"searches": {
				Type:     genai.TypeArray,
				MinItems: int64Ptr(SearchCount),
				MaxItems: int64Ptr(SearchCount),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query":    {Type: genai.TypeString, Description: "A specific web search query"},
						"priority": prioritySchema(),
					},
					Required: []string{"query", "priority"},
				},
			},
			"analyses": {
				Type:     genai.TypeArray,
				MinItems: int64Ptr(AnalysisCount),
				MaxItems: int64Ptr(AnalysisCount),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"type":        {Type: genai.TypeString, Description: "Short name of the analysis, e.g. trends or comparison"},
						"description": {Type: genai.TypeString, Description: "What this analysis should establish"},
						"priority":    prioritySchema(),
					},
					Required: []string{"type", "description", "priority"},
				},
			},
		},
		Required: []string{"searches", "analyses"},
	}
}

// AnalysisSchema is the shape of a single analysis result.
func AnalysisSchema() *genai.Schema {
	stringList := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"findings": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"insight":      {Type: genai.TypeString},
						"evidence":     {Type: genai.TypeString},
						"confidence":   unitSchema("Confidence in the insight"),
						"source_links": stringList,
					},
					Required: []string{"insight", "evidence", "confidence", "source_links"},
				},
			},
			"implications": stringList,
			"limitations":  stringList,
			"key_sources": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":     {Type: genai.TypeString},
						"url":       {Type: genai.TypeString},
						"relevance": unitSchema("Relevance of the source to this analysis"),
					},
					Required: []string{"title", "url", "relevance"},
				},
			},
		},
		Required: []string{"findings", "implications", "limitations", "key_sources"},
	}
}
