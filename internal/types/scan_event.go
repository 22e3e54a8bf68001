package types

import (
	"time"
)

// ScanEvent is an append-only record of one category scan. Never mutated
// after creation.
type ScanEvent struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Category      string    `gorm:"index;column:category" json:"category"`
	ProjectsFound int       `gorm:"column:projects_found" json:"projects_found"`
	ProjectsNew   int       `gorm:"column:projects_new" json:"projects_new"`
	Status        string    `gorm:"column:status" json:"status"`
	ScanTime      time.Time `gorm:"not null;index;column:scan_time" json:"scan_time"`
}

func (ScanEvent) TableName() string {
	return "scan_history"
}
