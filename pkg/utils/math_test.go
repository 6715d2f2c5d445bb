package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	if norm := NormalizeL2(v); norm != 5 {
		t.Errorf("norm = %v, want 5", norm)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", v)
	}

	zero := []float32{0, 0, 0}
	if norm := NormalizeL2(zero); norm != 0 {
		t.Errorf("zero norm = %v", norm)
	}
	for _, x := range zero {
		if x != 0 {
			t.Fatalf("zero vector changed: %v", zero)
		}
	}
}

func TestMeanPool(t *testing.T) {
	got, err := MeanPool([][]float32{{1, 0}, {0, 1}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := float32(1 / math.Sqrt2)
	for i, x := range got {
		if math.Abs(float64(x-want)) > 1e-6 {
			t.Errorf("got[%d] = %v, want %v", i, x, want)
		}
	}

	if _, err := MeanPool(nil, 2); err == nil {
		t.Error("expected error for no vectors")
	}
	if _, err := MeanPool([][]float32{{1, 0}, {1}}, 2); err == nil {
		t.Error("expected error for dimension mismatch")
	}
}
