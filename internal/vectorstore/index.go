package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

var (
	// ErrInvalidConfig is returned for unusable index settings.
	ErrInvalidConfig = errors.New("invalid vectorstore config")

	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed is returned when a remote index cannot be reached.
	ErrConnectionFailed = errors.New("vectorstore connection failed")
)

// Record is one chunk vector to index.
type Record struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Vector     []float32
}

// Match is one search hit. Distance is cosine distance in [0, 2].
type Match struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Distance   float64
}

// Index is a similarity index over chunk vectors.
type Index interface {
	// Name identifies the implementation in logs and metrics.
	Name() string

	// Add indexes records. Ingestion calls it inside the content store
	// transaction so a failure rolls the document back.
	Add(ctx context.Context, records []Record) error

	// Search returns chunks of the given documents whose cosine distance to
	// vector is at most maxDistance, nearest first. A limit of zero or less
	// means no limit. A nil documentIDs searches every document; an empty
	// non-nil one returns no matches.
	Search(ctx context.Context, vector []float32, documentIDs []string, maxDistance float64, limit int) ([]Match, error)

	// DeleteDocument removes every vector of a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Health reports whether the index is usable.
	Health(ctx context.Context) error

	Close() error
}

// CosineDistance returns 1 - cos(a, b). Mismatched or zero vectors are at
// the maximum distance of 2.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// sortMatches orders by distance, then document and ordinal so equal
// distances come back in a stable order.
func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		if ms[i].DocumentID != ms[j].DocumentID {
			return ms[i].DocumentID < ms[j].DocumentID
		}
		return ms[i].Ordinal < ms[j].Ordinal
	})
}

func truncate(ms []Match, limit int) []Match {
	if limit > 0 && len(ms) > limit {
		return ms[:limit]
	}
	return ms
}
