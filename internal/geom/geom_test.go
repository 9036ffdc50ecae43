package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIOU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{
			name: "identical boxes",
			a:    BBox{X: 10, Y: 10, W: 100, H: 50},
			b:    BBox{X: 10, Y: 10, W: 100, H: 50},
			want: 1.0,
		},
		{
			name: "disjoint boxes",
			a:    BBox{X: 0, Y: 0, W: 10, H: 10},
			b:    BBox{X: 100, Y: 100, W: 10, H: 10},
			want: 0,
		},
		{
			name: "half overlap in x",
			a:    BBox{X: 0, Y: 0, W: 10, H: 10},
			b:    BBox{X: 5, Y: 0, W: 10, H: 10},
			// intersection 50, union 150
			want: 1.0 / 3.0,
		},
		{
			name: "touching edges",
			a:    BBox{X: 0, Y: 0, W: 10, H: 10},
			b:    BBox{X: 10, Y: 0, W: 10, H: 10},
			want: 0,
		},
		{
			name: "zero-area box",
			a:    BBox{X: 0, Y: 0, W: 0, H: 0},
			b:    BBox{X: 0, Y: 0, W: 10, H: 10},
			want: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, IOU(tc.a, tc.b), 1e-9)
		})
	}
}

func TestBBoxCenterAndArea(t *testing.T) {
	t.Parallel()

	b := BBox{X: 10, Y: 20, W: 40, H: 60}
	assert.Equal(t, Point{X: 30, Y: 50}, b.Center())
	assert.InDelta(t, 2400.0, b.Area(), 1e-9)

	degenerate := BBox{X: 0, Y: 0, W: -5, H: 10}
	assert.Equal(t, 0.0, degenerate.Area())
}

func TestCenterDistance(t *testing.T) {
	t.Parallel()

	a := BBox{X: 0, Y: 0, W: 10, H: 10}   // centre (5, 5)
	b := BBox{X: 30, Y: 40, W: 10, H: 10} // centre (35, 45)
	assert.InDelta(t, 50.0, CenterDistance(a, b), 1e-9)
}

func TestFrameGeometry(t *testing.T) {
	t.Parallel()

	g := FrameGeometry{Width: 1920, Height: 1080}
	assert.Equal(t, Point{X: 960, Y: 540}, g.Center())
	assert.InDelta(t, 1101.8, g.MaxCenterDistance(), 0.1)
}
