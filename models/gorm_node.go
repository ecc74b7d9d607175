package models

// DocumentNode is one JSON document of the local document tree, keyed by its
// slash-separated path (e.g. users/abc/inspections/0190...). It corresponds to
// the 'document_nodes' table.
type DocumentNode struct {
	Path string `gorm:"primaryKey" json:"path"`
	// JSON-encoded document body
	Value string `gorm:"not null" json:"value"`
	// Unix seconds, stored as INTEGER in SQLite
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (DocumentNode) TableName() string {
	return "document_nodes"
}
