package model

import "time"

// IngestRecord marks one ingestion of a document into the vector store.
type IngestRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Filename   string    `gorm:"size:255;not null;index" json:"filename"`
	IngestedBy string    `gorm:"size:64;not null;index" json:"ingested_by"`
	IsPublic   bool      `gorm:"not null;default:false" json:"is_public"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
