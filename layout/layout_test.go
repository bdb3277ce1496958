package layout

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/model"
)

func TestSectionFor(t *testing.T) {
	cases := []struct {
		r    model.Rect
		want model.Section
	}{
		{model.Rect{X: 10, Y: 10}, model.SectionA1},
		{model.Rect{X: 10, Y: 60}, model.SectionA2},
		{model.Rect{X: 60, Y: 10}, model.SectionB1},
		{model.Rect{X: 60, Y: 60}, model.SectionB2},
		// The midline belongs to the second half.
		{model.Rect{X: 50, Y: 50}, model.SectionB2},
		{model.Rect{X: 49.9, Y: 50}, model.SectionA2},
	}
	for _, tc := range cases {
		if got := SectionFor(tc.r, 100, 100); got != tc.want {
			t.Fatalf("SectionFor(%+v) = %s, want %s", tc.r, got, tc.want)
		}
	}
}

func TestDeriveSpace(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := model.Rect{X: 120, Y: 40, W: 30, H: 60}

	s := DeriveSpace(r, 200, 100, 4, now)

	if s.ID != "S5-B1" {
		t.Fatalf("ID = %q, want S5-B1", s.ID)
	}
	if s.Section != model.SectionB1 {
		t.Fatalf("Section = %s, want B1", s.Section)
	}
	if s.DistanceToEntrance != 160 {
		t.Fatalf("DistanceToEntrance = %v, want 160", s.DistanceToEntrance)
	}
	if !s.Occupied {
		t.Fatalf("derived spaces must start occupied")
	}
	if s.IsGroup || s.Position == nil || *s.Position != r {
		t.Fatalf("unexpected position/group fields: %+v", s)
	}
	if !s.LastStateChange.Equal(now) {
		t.Fatalf("LastStateChange = %v, want %v", s.LastStateChange, now)
	}

	again := DeriveSpace(r, 200, 100, 4, now.Add(time.Hour))
	if again.ID != s.ID || again.Section != s.Section {
		t.Fatalf("derivation is not deterministic: %q vs %q", again.ID, s.ID)
	}
	if SpaceID(r, 200, 100, 4) != s.ID {
		t.Fatalf("SpaceID disagrees with DeriveSpace")
	}
}

func TestDeriveGroupAndBoundingBox(t *testing.T) {
	l := New([]model.Rect{
		{X: 0, Y: 0, W: 10, H: 20},
		{X: 10, Y: 0, W: 10, H: 20},
		{X: 20, Y: 0, W: 10, H: 20},
	}, 100, 100, []int{0, 1, 2, 9})

	box, resolved := BoundingBox(l, l.Groups[0])
	if box != (model.Rect{X: 0, Y: 0, W: 30, H: 20}) {
		t.Fatalf("BoundingBox = %+v", box)
	}
	if len(resolved) != 3 {
		t.Fatalf("resolved = %v, want 3 members", resolved)
	}

	g, err := DeriveGroup(l, l.Groups[0], 0, time.Time{})
	if err != nil {
		t.Fatalf("DeriveGroup: %v", err)
	}
	if g.ID != "G1-A1" || !g.IsGroup || !g.Occupied || g.Position != nil {
		t.Fatalf("unexpected group %+v", g)
	}
	if len(g.MemberSpaces) != 3 {
		t.Fatalf("MemberSpaces = %v, want out-of-range member dropped", g.MemberSpaces)
	}

	if _, err := DeriveGroup(l, []int{7, -1}, 1, time.Time{}); !errors.Is(err, ErrEmptyGroup) {
		t.Fatalf("DeriveGroup with no members error = %v, want ErrEmptyGroup", err)
	}
}

func TestSpacesOrderAndSkips(t *testing.T) {
	l := New([]model.Rect{
		{X: 0, Y: 0, W: 10, H: 20},
		{X: 60, Y: 60, W: 10, H: 20},
	}, 100, 100, []int{0, 1}, []int{5})
	l.Rects = append(l.Rects, nil)

	spaces := l.Spaces(context.Background(), time.Time{}, logging.Noop())
	var got []string
	for _, s := range spaces {
		got = append(got, s.ID)
	}
	if strings.Join(got, ",") != "S1-A1,S2-B2,G1-A1" {
		t.Fatalf("Spaces ids = %v", got)
	}
}

func TestDecodeJSONSkipsMalformedEntries(t *testing.T) {
	src := `{"width": 200, "height": 100,
		"rects": [[0, 0, 10, 20], [1, 2, 3], [150, 70, 10, 20], [5, 5, 0, 10],
			[-600, -400, 10, 10], [195, 10, 10, 10], [10, 95, 10, 10]],
		"groups": [[0, 2], [4, 5, 6]]}`

	l, err := Decode(context.Background(), strings.NewReader(src), "json", logging.Noop())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(l.Rects) != 7 {
		t.Fatalf("len(Rects) = %d, want 7 (indices preserved)", len(l.Rects))
	}
	for _, i := range []int{1, 3, 4, 5, 6} {
		if l.Rects[i] != nil {
			t.Fatalf("entry %d should be skipped, got %+v", i, l.Rects[i])
		}
	}
	if r, ok := l.Rect(2); !ok || r.X != 150 {
		t.Fatalf("Rect(2) = %+v, %v", r, ok)
	}
	spaces := l.Spaces(context.Background(), time.Time{}, nil)
	if len(spaces) != 3 || spaces[1].ID != "S3-B2" {
		t.Fatalf("unexpected spaces: %d, second=%q", len(spaces), spaces[1].ID)
	}
	for _, s := range spaces {
		if s.DistanceToEntrance < 0 {
			t.Fatalf("%s has negative distance %v", s.ID, s.DistanceToEntrance)
		}
	}
}

func TestParseRectBounds(t *testing.T) {
	cases := []struct {
		entry []float64
		ok    bool
	}{
		{[]float64{0, 0, 100, 50}, true},
		{[]float64{90, 40, 10, 10}, true},
		{[]float64{-1, 0, 10, 10}, false},
		{[]float64{0, -1, 10, 10}, false},
		{[]float64{91, 0, 10, 10}, false},
		{[]float64{0, 41, 10, 10}, false},
		{[]float64{0, 0, math.Inf(1), 10}, false},
		{[]float64{math.NaN(), 0, 10, 10}, false},
	}
	for _, tc := range cases {
		_, err := parseRect(tc.entry, 100, 50)
		if tc.ok && err != nil {
			t.Fatalf("parseRect(%v): %v", tc.entry, err)
		}
		if !tc.ok && !errors.Is(err, ErrMalformedRect) {
			t.Fatalf("parseRect(%v) error = %v, want ErrMalformedRect", tc.entry, err)
		}
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
width: 100
height: 100
rects:
  - [0, 0, 10, 20]
  - [10, 0, 10, 20]
groups:
  - [0, 1]
`
	l, err := Decode(context.Background(), strings.NewReader(src), "yaml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if l.Empty() || len(l.Groups) != 1 {
		t.Fatalf("unexpected layout %+v", l)
	}
}

func TestDecodeRejectsBadDimensions(t *testing.T) {
	_, err := Decode(context.Background(), strings.NewReader(`{"width": 0, "height": 10, "rects": []}`), "json", nil)
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("Decode error = %v, want ErrInvalidDimensions", err)
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lot.yml")
	if err := os.WriteFile(path, []byte("width: 50\nheight: 50\nrects:\n  - [1, 1, 5, 5]\n"), 0o600); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	l, err := Load(context.Background(), path, logging.Noop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r, ok := l.Rect(0); !ok || r.W != 5 {
		t.Fatalf("Rect(0) = %+v, %v", r, ok)
	}

	bad := filepath.Join(dir, "lot.txt")
	if err := os.WriteFile(bad, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	if _, err := Load(context.Background(), bad, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Load .txt error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestNilLayoutIsEmpty(t *testing.T) {
	var l *Layout
	if !l.Empty() {
		t.Fatalf("nil layout should be empty")
	}
	if _, ok := l.Rect(0); ok {
		t.Fatalf("nil layout should resolve nothing")
	}
}
