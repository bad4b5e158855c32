package search

import (
	"math"
	"sort"

	"jobradar/internal/domain/job"

	"github.com/cockroachdb/errors"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "%d != %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank scores candidates against query and returns at most limit of them,
// highest score first. Jobs without a core vector, with a different vector
// length, or failing filters are dropped. Equal scores go to the more recently
// collected job, then to the smaller id.
func Rank(query []float32, candidates []job.Job, filters job.Filters, limit int) []job.Scored {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]job.Scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasEmbedding() || !filters.Matches(c) {
			continue
		}
		score, err := CosineSimilarity(query, c.Embeddings.CoreRequirements)
		if err != nil {
			continue
		}
		out = append(out, job.Scored{Job: c, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Job.CollectedAt.Equal(b.Job.CollectedAt) {
			return a.Job.CollectedAt.After(b.Job.CollectedAt)
		}
		return a.Job.ID.String() < b.Job.ID.String()
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
