package facematch

import (
	"math"
	"testing"
)

func TestBoxFromBBox(t *testing.T) {
	tests := []struct {
		name   string
		bbox   []float64
		want   Box
		wantOK bool
	}{
		{
			name:   "regular box",
			bbox:   []float64{10.4, 20.6, 110, 140},
			want:   Box{Left: 10, Top: 21, Right: 110, Bottom: 140},
			wantOK: true,
		},
		{
			name:   "swapped corners",
			bbox:   []float64{110, 140, 10, 20},
			want:   Box{Left: 10, Top: 20, Right: 110, Bottom: 140},
			wantOK: true,
		},
		{
			name:   "too short",
			bbox:   []float64{0, 0, 10},
			wantOK: false,
		},
		{
			name:   "NaN",
			bbox:   []float64{0, math.NaN(), 10, 10},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BoxFromBBox(tt.bbox)
			if ok != tt.wantOK {
				t.Fatalf("BoxFromBBox(%v) ok = %v, want %v", tt.bbox, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("BoxFromBBox(%v) = %+v, want %+v", tt.bbox, got, tt.want)
			}
		})
	}
}

func TestBoxClamp(t *testing.T) {
	b := Box{Left: -5, Top: -5, Right: 700, Bottom: 500}
	got := b.Clamp(640, 480)
	want := Box{Left: 0, Top: 0, Right: 640, Bottom: 480}
	if got != want {
		t.Errorf("Clamp = %+v, want %+v", got, want)
	}
}

func TestBoxEmpty(t *testing.T) {
	if !(Box{Left: 10, Top: 10, Right: 10, Bottom: 20}).Empty() {
		t.Error("expected zero-width box to be empty")
	}
	if (Box{Left: 0, Top: 0, Right: 1, Bottom: 1}).Empty() {
		t.Error("expected 1x1 box to be non-empty")
	}
}

func TestBox_ScaleOffset(t *testing.T) {
	b := Box{Left: 10, Top: 20, Right: 30, Bottom: 41}

	if got := b.Scale(2); got != (Box{Left: 20, Top: 40, Right: 60, Bottom: 82}) {
		t.Errorf("Scale(2) = %+v", got)
	}
	if got := b.Scale(0.5); got != (Box{Left: 5, Top: 10, Right: 15, Bottom: 21}) {
		t.Errorf("Scale(0.5) = %+v", got)
	}
	if got := b.Offset(5, -5); got != (Box{Left: 15, Top: 15, Right: 35, Bottom: 36}) {
		t.Errorf("Offset(5, -5) = %+v", got)
	}
}
