package embedder

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
)

// FakeBackend is a deterministic, zero-dependency backend. It hashes the
// input text with SHA-256 and uses the hash as a seed to generate a
// reproducible float32 vector, then L2-normalizes it. Same text always
// yields the same vector within and across processes.
type FakeBackend struct {
	dimension int
}

// NewFakeBackend creates a FakeBackend producing vectors of the given
// dimension.
func NewFakeBackend(dimension int) *FakeBackend {
	return &FakeBackend{dimension: dimension}
}

// Embed returns a deterministic, unit-normalized vector for text. The
// backend's configured dimension is folded into the hash input, so two
// Registries embedding the same text at different dimensions never collide
// on a shared seed.
func (f *FakeBackend) Embed(text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", f.dimension, text)))
	//nolint:gosec // overflow is acceptable for seeding a non-crypto RNG
	seed := int64(binary.LittleEndian.Uint64(hash[:8]))
	//nolint:gosec // deterministic RNG is intentional for the fake backend
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, f.dimension)
	var sumSquares float64
	for i := range vec {
		component := rng.Float32()*2 - 1 // [-1, 1]
		vec[i] = component
		sumSquares += float64(component) * float64(component)
	}

	if norm := math.Sqrt(sumSquares); norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (f *FakeBackend) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the configured output dimension.
func (f *FakeBackend) Dimension() int {
	return f.dimension
}

// Close is a no-op for the fake backend.
func (*FakeBackend) Close() error {
	return nil
}
