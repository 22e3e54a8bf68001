package types

// Setting is a key/value pair; last write wins.
type Setting struct {
	Key   string `gorm:"primaryKey;column:key" json:"key"`
	Value string `gorm:"column:value" json:"value"`
}

func (Setting) TableName() string {
	return "settings"
}
