package store

import "time"

// Document is an immutable uploaded document.
type Document struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"not null"`
	ContentHash string    `gorm:"size:64;not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	Chunks      []Chunk   `gorm:"constraint:OnDelete:CASCADE"`
}

// TableName implements gorm's tabler.
func (Document) TableName() string { return "documents" }

// Chunk is one ordered piece of a document and its embedding, encoded with
// EncodeEmbedding.
type Chunk struct {
	ID         string    `gorm:"primaryKey;size:36"`
	DocumentID string    `gorm:"size:36;not null;uniqueIndex:idx_chunk_document_ordinal,priority:1"`
	Ordinal    int       `gorm:"not null;uniqueIndex:idx_chunk_document_ordinal,priority:2"`
	Content    string    `gorm:"type:text;not null"`
	Embedding  []byte    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (Chunk) TableName() string { return "document_chunks" }

// Vector decodes the stored embedding.
func (c Chunk) Vector() []float32 { return DecodeEmbedding(c.Embedding) }

// UserDocumentLink ties a user to a document. ContentHash mirrors the
// document's hash so the (user, hash) pair can carry a unique index.
type UserDocumentLink struct {
	UserID       string    `gorm:"primaryKey;size:128;uniqueIndex:idx_link_user_hash,priority:1"`
	DocumentID   string    `gorm:"primaryKey;size:36;index"`
	ContentHash  string    `gorm:"size:64;not null;uniqueIndex:idx_link_user_hash,priority:2"`
	EnabledForQA bool      `gorm:"column:enabled_for_qa;not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (UserDocumentLink) TableName() string { return "user_documents" }

// UserDocument is a document as seen by one user.
type UserDocument struct {
	ID           string    `gorm:"column:id" json:"id"`
	Name         string    `gorm:"column:name" json:"name"`
	ContentHash  string    `gorm:"column:content_hash" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	EnabledForQA bool      `gorm:"column:enabled_for_qa" json:"enabled_for_qa"`
}

// EnabledDocument identifies a document a user has enabled for QA.
type EnabledDocument struct {
	ID          string `gorm:"column:id"`
	ContentHash string `gorm:"column:content_hash"`
}
