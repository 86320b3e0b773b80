package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// EncodeEmbedding serializes a vector in the "[a,b,c]" text form shared by the
// JSON columns and the pgvector text representation. Vectors holding NaN or
// an infinity have no such form and are rejected.
func EncodeEmbedding(v []float64) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode embedding: %v", ErrItemRejected, err)
	}
	return b, nil
}

// ParseEmbedding decodes a serialized vector. When dimension > 0 the vector
// must have exactly that many components.
func ParseEmbedding(raw []byte, dimension int) ([]float64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedRecord)
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: zero-length embedding", ErrMalformedRecord)
	}
	if dimension > 0 && len(v) != dimension {
		return nil, fmt.Errorf("%w: dimension %d, want %d", ErrMalformedRecord, len(v), dimension)
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero norm.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
