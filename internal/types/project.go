package types

import (
	"time"
)

// Project is one cataloged repository. Fetch-derived fields are overwritten
// on every upsert; AI-derived fields are only written by the enrichment
// stage that owns them.
type Project struct {
	ID          string   `gorm:"primaryKey;column:id" json:"id"`
	Name        string   `gorm:"not null;column:name" json:"name"`
	FullName    string   `gorm:"not null;index;column:full_name" json:"full_name"`
	Category    string   `gorm:"index;column:category" json:"category"`
	Stars       int      `gorm:"column:stars" json:"stars"`
	Forks       int      `gorm:"column:forks" json:"forks"`
	Description string   `gorm:"column:description" json:"description"`
	URL         string   `gorm:"column:url" json:"url"`
	Homepage    string   `gorm:"column:homepage" json:"homepage"`
	Language    string   `gorm:"column:language" json:"language"`
	Topics      []string `gorm:"serializer:json;column:topics" json:"topics"`

	CreatedAt   string     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   string     `gorm:"column:updated_at" json:"updated_at"`
	LastScanned *time.Time `gorm:"column:last_scanned" json:"last_scanned"`

	AISummary       string     `gorm:"column:ai_summary" json:"ai_summary"`
	AITechStack     []string   `gorm:"serializer:json;column:ai_tech_stack" json:"ai_tech_stack"`
	AIUseCases      []string   `gorm:"serializer:json;column:ai_use_cases" json:"ai_use_cases"`
	AIDifficulty    int        `gorm:"column:ai_difficulty" json:"ai_difficulty"`
	AIQuickStart    string     `gorm:"column:ai_quick_start" json:"ai_quick_start"`
	AIModelName     string     `gorm:"column:ai_model_name" json:"ai_model_name"`
	AIRAGSummary    string     `gorm:"column:ai_rag_summary" json:"ai_rag_summary"`
	Screenshot      string     `gorm:"column:screenshot" json:"screenshot"`
	AIVisualSummary string     `gorm:"column:ai_visual_summary" json:"ai_visual_summary"`
	AITutorial      string     `gorm:"column:ai_tutorial" json:"ai_tutorial"`
	LastAnalyzed    *time.Time `gorm:"column:last_analyzed" json:"last_analyzed"`
}

func (Project) TableName() string {
	return "projects"
}

// Analyzed reports whether the structured analysis produced by model is
// already present, which makes the analysis stage a no-op.
func (p *Project) Analyzed(model string) bool {
	return p.AISummary != "" && p.AIModelName == model
}
