package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

const vectorHeaderSize = 4

// EncodeVector packs a float32 vector into a blob suitable for a sqlite
// column: a 4-byte little-endian dimension header followed by the values.
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}

	blob := make([]byte, vectorHeaderSize+len(vector)*4)
	binary.LittleEndian.PutUint32(blob[:vectorHeaderSize], uint32(len(vector)))

	offset := vectorHeaderSize
	for i, value := range vector {
		if !isFinite(float64(value)) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[offset:offset+4], math.Float32bits(value))
		offset += 4
	}

	return blob, nil
}

// DecodeVector reverses EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < vectorHeaderSize {
		return nil, fmt.Errorf("decode vector: blob too short: %d bytes", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob[:vectorHeaderSize]))
	if dim <= 0 {
		return nil, fmt.Errorf("decode vector: invalid dimension: %d", dim)
	}
	if len(blob) != vectorHeaderSize+dim*4 {
		return nil, fmt.Errorf("decode vector: dimension mismatch: dim=%d payload=%d", dim, len(blob)-vectorHeaderSize)
	}

	vector := make([]float32, dim)
	offset := vectorHeaderSize
	for i := range vector {
		value := math.Float32frombits(binary.LittleEndian.Uint32(blob[offset : offset+4]))
		if !isFinite(float64(value)) {
			return nil, fmt.Errorf("decode vector: invalid value at index %d", i)
		}
		vector[i] = value
		offset += 4
	}

	return vector, nil
}

// CosineSimilarity computes cosine similarity for two equal-length vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("cosine similarity: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity: zero vector norm")
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
