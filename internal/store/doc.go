// Package store is the relational content store: documents, their chunks
// with embeddings, and the per-user links that decide which documents take
// part in question answering.
//
// The store runs on gorm with the CGO-free SQLite driver. Ingestion writes go
// through InTx so a document, its link and its chunks commit together or not
// at all.
package store
