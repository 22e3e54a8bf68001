package types

import (
	"time"
)

// NewsSource is a user-managed discovery page crawled for repository links.
type NewsSource struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string     `gorm:"not null;column:name" json:"name"`
	URL         string     `gorm:"not null;uniqueIndex;column:url" json:"url"`
	LastScanned *time.Time `gorm:"column:last_scanned" json:"last_scanned"`
}

func (NewsSource) TableName() string {
	return "news_sources"
}
