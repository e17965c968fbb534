package store

import (
	"time"

	"gorm.io/datatypes"
)

// Group is a project group: the unit of isolation for documents, summaries,
// the mind-map and the vector collection.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`

	Documents []Document `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Summaries []Summary  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	MindMap   *MindMap   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Group) TableName() string { return "groups" }

// Document is an uploaded file registered under a group. Rows are never
// updated after creation.
type Document struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupID     uint      `gorm:"not null;uniqueIndex:idx_documents_group_file" json:"group_id"`
	FileName    string    `gorm:"size:255;not null;uniqueIndex:idx_documents_group_file" json:"file_name"`
	StoragePath string    `gorm:"not null" json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Document) TableName() string { return "documents" }

// Summary is one generated summary. Every successful job appends a row.
type Summary struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupID     uint      `gorm:"not null;index" json:"group_id"`
	FileName    string    `gorm:"size:255;not null;index" json:"file_name"`
	SummaryText string    `gorm:"type:text;not null" json:"summary_text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Summary) TableName() string { return "summaries" }

// MindMap holds the serialized tree of a group. At most one row per group.
type MindMap struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	GroupID   uint           `gorm:"not null;uniqueIndex" json:"group_id"`
	Data      datatypes.JSON `gorm:"column:mindmap_json;not null" json:"mindmap"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (MindMap) TableName() string { return "mindmaps" }
