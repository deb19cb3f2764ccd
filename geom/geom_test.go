package geom

import (
	"math"
	"testing"
)

const eps = 1e-9

func almostEq(a, b Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestTransform_RoundTrip(t *testing.T) {
	zooms := []float64{0.1, 0.5, 1.0, 2.5, 10.0}
	pans := []Vec{{0, 0}, {-120.5, 40}, {999, -3.25}}
	points := []Vec{{0, 0}, {13.7, 250.2}, {-5, 8000}}
	for _, z := range zooms {
		for _, pan := range pans {
			for _, p := range points {
				got := ToImage(ToCanvas(p, z, pan), z, pan)
				if !almostEq(got, p) {
					t.Fatalf("round trip failed: zoom=%v pan=%v p=%v got=%v", z, pan, p, got)
				}
			}
		}
	}
}

func TestHitTestHandle_ToleranceIsScreenSpace(t *testing.T) {
	r := Rect{X: 100, Y: 100, Width: 50, Height: 50}
	// At zoom 4 the top-left handle sits at canvas (400,400).
	cursor := Vec{X: 404, Y: 396}
	if h := HitTestHandle(cursor, r, 4, Vec{}, 5); h != HandleTopLeft {
		t.Fatalf("expected top-left handle at zoom 4, got %v", h)
	}
	// 5px in image space would be 20px in canvas space at zoom 4; a
	// cursor 8px away must miss because tolerance is screen pixels.
	cursor = Vec{X: 408, Y: 392}
	if h := HitTestHandle(cursor, r, 4, Vec{}, 5); h != HandleNone {
		t.Fatalf("expected miss 8px away with 5px tolerance, got %v", h)
	}
}

func TestHitTestHandle_AllEight(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	cases := []struct {
		at   Vec
		want Handle
	}{
		{Vec{0, 0}, HandleTopLeft},
		{Vec{50, 0}, HandleTop},
		{Vec{100, 0}, HandleTopRight},
		{Vec{100, 50}, HandleRight},
		{Vec{100, 100}, HandleBottomRight},
		{Vec{50, 100}, HandleBottom},
		{Vec{0, 100}, HandleBottomLeft},
		{Vec{0, 50}, HandleLeft},
	}
	for _, c := range cases {
		if h := HitTestHandle(c.at, r, 1, Vec{}, 4); h != c.want {
			t.Fatalf("at %v expected %v, got %v", c.at, c.want, h)
		}
	}
}

func TestHitTestBody_TopmostWins(t *testing.T) {
	// Two overlapping rects; the later one (index 1) is "more recent".
	rects := []Rect{
		{X: 10, Y: 10, Width: 100, Height: 100},
		{X: 50, Y: 50, Width: 100, Height: 100},
	}
	// Point inside both.
	if i := HitTestBody(Vec{X: 60, Y: 60}, rects, 1, Vec{}); i != 1 {
		t.Fatalf("expected most recent rect to win tie-break, got index %d", i)
	}
	// Point inside only the first.
	if i := HitTestBody(Vec{X: 20, Y: 20}, rects, 1, Vec{}); i != 0 {
		t.Fatalf("expected index 0, got %d", i)
	}
	// Point outside both.
	if i := HitTestBody(Vec{X: 500, Y: 500}, rects, 1, Vec{}); i != -1 {
		t.Fatalf("expected miss, got %d", i)
	}
}

func TestHitTestBody_RespectsZoomAndPan(t *testing.T) {
	rects := []Rect{{X: 100, Y: 100, Width: 10, Height: 10}}
	// Image point (105,105) maps to canvas (105*2+30, 105*2-10).
	cursor := Vec{X: 240, Y: 200}
	if i := HitTestBody(cursor, rects, 2, Vec{X: 30, Y: -10}); i != 0 {
		t.Fatalf("expected hit under zoom/pan, got %d", i)
	}
}

func TestMove_ClampsToImageBounds(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 50, Height: 40}
	// Large negative delta at zoom 1 pins the rect to the origin.
	got := Move(r, Vec{X: -1000, Y: -1000}, 1, 640, 480)
	if got.X != 0 || got.Y != 0 || got.Width != 50 || got.Height != 40 {
		t.Fatalf("expected pinned to origin with size kept, got %+v", got)
	}
	// Large positive delta pins to the far edge.
	got = Move(r, Vec{X: 1e6, Y: 1e6}, 1, 640, 480)
	if got.X != 590 || got.Y != 440 {
		t.Fatalf("expected pinned to far edge, got %+v", got)
	}
}

func TestMove_DividesScreenDeltaByZoom(t *testing.T) {
	r := Rect{X: 100, Y: 100, Width: 20, Height: 20}
	got := Move(r, Vec{X: 50, Y: -30}, 2, 1000, 1000)
	if got.X != 125 || got.Y != 85 {
		t.Fatalf("expected (125,85), got (%v,%v)", got.X, got.Y)
	}
}

func TestResize_PerEdgeClamping(t *testing.T) {
	r := Rect{X: 100, Y: 100, Width: 60, Height: 60}
	// Drag the right edge far left: width clamps at minSize, the left
	// edge never moves.
	got := Resize(r, HandleRight, Vec{X: -500, Y: 0}, 1, 1000, 1000, 10)
	if got.X != 100 || got.Width != 10 || got.Height != 60 {
		t.Fatalf("expected width clamped to min, got %+v", got)
	}
	// Drag the bottom-right corner past the image bound.
	got = Resize(r, HandleBottomRight, Vec{X: 1e6, Y: 1e6}, 1, 640, 480, 10)
	if got.X+got.Width != 640 || got.Y+got.Height != 480 {
		t.Fatalf("expected clamped to image bounds, got %+v", got)
	}
	// Drag the top-left corner: only left/top edges move; the shrink on
	// one axis does not abort the other.
	got = Resize(r, HandleTopLeft, Vec{X: -40, Y: 500}, 1, 1000, 1000, 10)
	if got.X != 60 || got.Y != 150 || got.Height != 10 {
		t.Fatalf("expected per-edge clamp, got %+v", got)
	}
	if got.X+got.Width != 160 {
		t.Fatalf("right edge must not move on a left-handle resize, got %+v", got)
	}
}

func TestResize_InvariantsHold(t *testing.T) {
	r := Rect{X: 30, Y: 30, Width: 40, Height: 40}
	handles := []Handle{
		HandleTopLeft, HandleTop, HandleTopRight, HandleRight,
		HandleBottomRight, HandleBottom, HandleBottomLeft, HandleLeft,
	}
	deltas := []Vec{{-1e6, -1e6}, {1e6, 1e6}, {-13, 27}, {400, -400}}
	for _, h := range handles {
		for _, d := range deltas {
			got := Resize(r, h, d, 1.5, 200, 200, 5)
			if got.Width < 5-eps || got.Height < 5-eps {
				t.Fatalf("min size violated: handle=%v delta=%v got=%+v", h, d, got)
			}
			if got.X < -eps || got.Y < -eps || got.X+got.Width > 200+eps || got.Y+got.Height > 200+eps {
				t.Fatalf("bounds violated: handle=%v delta=%v got=%+v", h, d, got)
			}
		}
	}
}

func TestFromCorners_NormalizesAndClamps(t *testing.T) {
	got := FromCorners(Vec{X: 90, Y: -20}, Vec{X: 10, Y: 30}, 100, 100)
	if got.X != 10 || got.Y != 0 || got.Width != 80 || got.Height != 30 {
		t.Fatalf("unexpected rect %+v", got)
	}
}

func TestZoomAround_KeepsCursorPointFixed(t *testing.T) {
	cursor := Vec{X: 320, Y: 200}
	oldZoom, newZoom := 1.5, 2.4
	oldPan := Vec{X: -40, Y: 12}
	imgPt := ToImage(cursor, oldZoom, oldPan)
	newPan := ZoomAround(cursor, oldZoom, newZoom, oldPan)
	back := ToCanvas(imgPt, newZoom, newPan)
	if !almostEq(back, cursor) {
		t.Fatalf("cursor point drifted: %v -> %v", cursor, back)
	}
}
