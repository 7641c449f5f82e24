package math

import (
	"testing"
)

func TestVec3Distance(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 6, 3}
	if got := a.Distance(b); got != 5 {
		t.Errorf("Vec3.Distance() = %v, want 5", got)
	}
}

func TestVec3Lerp(t *testing.T) {
	got := Vec3{0, 0, 0}.Lerp(Vec3{10, 20, 30}, 0.5)
	want := Vec3{5, 10, 15}
	if got != want {
		t.Errorf("Vec3.Lerp() = %v, want %v", got, want)
	}
}

func TestVec2Length(t *testing.T) {
	if got := (Vec2{3, 4}).Length(); got != 5 {
		t.Errorf("Vec2.Length() = %v, want 5", got)
	}
}

func TestBoxDistance(t *testing.T) {
	box := Box{Min: Vec3{0, 0, 0}, Max: Vec3{10, 5, 10}}

	tests := []struct {
		name string
		p    Vec3
		want float64
	}{
		{"inside", Vec3{5, 2, 5}, 0},
		{"on face", Vec3{10, 2, 5}, 0},
		{"beside x", Vec3{13, 2, 5}, 3},
		{"above", Vec3{5, 9, 5}, 4},
		{"corner", Vec3{13, 5, 14}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := box.Distance(tt.p); got != tt.want {
				t.Errorf("Box.Distance(%v) = %v, want %v", tt.p, got, tt.want)
			}
			if (tt.want == 0) != box.Contains(tt.p) {
				t.Errorf("Box.Contains(%v) disagrees with distance %v", tt.p, tt.want)
			}
		})
	}
}
