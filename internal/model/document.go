package model

import "time"

// PublicOwner is the pseudo-tenant that owns documents and chunks readable by everyone.
const PublicOwner = "public"

// Document is an uploaded PDF. Owner is the uploading username, or PublicOwner for public uploads.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Filename   string    `gorm:"size:255;not null;uniqueIndex:idx_documents_owner_filename" json:"filename"`
	Owner      string    `gorm:"size:64;not null;uniqueIndex:idx_documents_owner_filename" json:"owner"`
	UploadedBy string    `gorm:"size:64;not null;index" json:"uploaded_by"`
	IsPublic   bool      `gorm:"not null;default:false" json:"is_public"`
	StorageKey string    `gorm:"size:512;not null" json:"storage_key"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
