package cache

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/store"
)

// KeyPrefix namespaces answer entries in shared key-value stores.
const KeyPrefix = "qa_cache:"

// DocumentStateHash folds the id and content hash of every enabled document,
// in id order, into one digest. An empty set hashes the empty string.
func DocumentStateHash(docs []store.EnabledDocument) string {
	sorted := make([]store.EnabledDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	for _, d := range sorted {
		b.WriteString(d.ID)
		b.WriteString(d.ContentHash)
	}
	return md5Hex(b.String())
}

// Key derives the cache key for a question asked by userID against the
// given enabled documents. Anonymous questions are keyed on the text alone.
func Key(question, userID string, docs []store.EnabledDocument) string {
	parts := question
	if userID != "" {
		parts += userID + DocumentStateHash(docs)
	}
	return KeyPrefix + md5Hex(parts)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
