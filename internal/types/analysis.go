package types

// Analysis is the fixed-shape structured output of the analysis stage.
type Analysis struct {
	Summary    string   `json:"summary"`
	TechStack  []string `json:"tech_stack"`
	UseCases   []string `json:"use_cases"`
	Difficulty int      `json:"difficulty"`
	Highlights []string `json:"highlights"`
	AITags     []string `json:"ai_tags"`
	QuickStart string   `json:"quick_start"`
}
