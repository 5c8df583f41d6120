package memory

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.2, 0.3, 4.5}

	blob, err := EncodeVector(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(blob) != vectorHeaderSize+len(original)*4 {
		t.Fatalf("unexpected blob size %d", len(blob))
	}

	decoded, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("dimension changed: %d", len(decoded))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("value %d changed: %f != %f", i, decoded[i], original[i])
		}
	}
}

func TestEncodeVectorRejectsInvalid(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Fatal("expected error for NaN value")
	}
	if _, err := EncodeVector([]float32{float32(math.Inf(1))}); err == nil {
		t.Fatal("expected error for infinite value")
	}
}

func TestDecodeVectorRejectsCorruptBlobs(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2}); err == nil {
		t.Fatal("expected error for short blob")
	}

	blob, err := EncodeVector([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeVector(blob[:len(blob)-4]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}
	d := []float32{-1, 0, 0}

	if got, err := CosineSimilarity(a, b); err != nil || got != 1 {
		t.Fatalf("identical vectors: got %f, %v", got, err)
	}
	if got, err := CosineSimilarity(a, c); err != nil || got != 0 {
		t.Fatalf("orthogonal vectors: got %f, %v", got, err)
	}
	if got, err := CosineSimilarity(a, d); err != nil || got != -1 {
		t.Fatalf("opposite vectors: got %f, %v", got, err)
	}

	if _, err := CosineSimilarity(a, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if _, err := CosineSimilarity(a, []float32{0, 0, 0}); err == nil {
		t.Fatal("expected zero-norm error")
	}
	if _, err := CosineSimilarity(nil, nil); err == nil {
		t.Fatal("expected empty-vector error")
	}
}
