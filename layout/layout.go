// Package layout holds the raw parking layout (stall rectangles plus image
// dimensions) and derives stable space records from it.
package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/model"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedRect indicates a layout entry that is not a usable rectangle.
	ErrMalformedRect = errors.New("malformed layout rectangle")
	// ErrInvalidDimensions indicates a non-positive image width or height.
	ErrInvalidDimensions = errors.New("invalid layout dimensions")
	// ErrEmptyGroup indicates a group with no resolvable member rectangle.
	ErrEmptyGroup = errors.New("group has no resolvable members")
	// ErrUnsupportedFormat indicates a layout file extension we cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported layout format")
)

// Layout is the read-only description of a parking lot.
//
// Rects keeps the position of every entry in the source list; malformed
// entries are stored as nil so that group member indices stay aligned.
type Layout struct {
	Rects  []*model.Rect
	Width  float64
	Height float64
	Groups [][]int
}

// New builds a layout from well-formed rectangles.
func New(rects []model.Rect, width, height float64, groups ...[]int) *Layout {
	l := &Layout{
		Rects:  make([]*model.Rect, len(rects)),
		Width:  width,
		Height: height,
		Groups: groups,
	}
	for i := range rects {
		r := rects[i]
		l.Rects[i] = &r
	}
	return l
}

// Empty reports whether the layout has no usable rectangle.
func (l *Layout) Empty() bool {
	if l == nil {
		return true
	}
	for _, r := range l.Rects {
		if r != nil {
			return false
		}
	}
	return true
}

// Rect returns the rectangle at index, or false if the index is out of range
// or the entry was malformed.
func (l *Layout) Rect(index int) (model.Rect, bool) {
	if l == nil || index < 0 || index >= len(l.Rects) || l.Rects[index] == nil {
		return model.Rect{}, false
	}
	return *l.Rects[index], true
}

// Spaces derives every space record from the layout: individual stalls in
// layout order followed by groups in layout order. Malformed stalls and empty
// groups are logged and skipped.
func (l *Layout) Spaces(ctx context.Context, now time.Time, log logging.Logger) []*model.Space {
	if log == nil {
		log = logging.Noop()
	}
	if l == nil {
		return nil
	}

	spaces := make([]*model.Space, 0, len(l.Rects)+len(l.Groups))
	for i, r := range l.Rects {
		if r == nil {
			log.Warn(ctx, "skipping malformed layout entry", logging.Int("index", i))
			continue
		}
		spaces = append(spaces, DeriveSpace(*r, l.Width, l.Height, i, now))
	}
	for gi, members := range l.Groups {
		group, err := DeriveGroup(l, members, gi, now)
		if err != nil {
			log.Warn(ctx, "skipping group", logging.Int("group", gi+1), logging.Err(err))
			continue
		}
		if dropped := len(members) - len(group.MemberSpaces); dropped > 0 {
			log.Warn(ctx, "group references unknown layout entries",
				logging.String("group_id", group.ID),
				logging.Int("dropped", dropped),
			)
		}
		spaces = append(spaces, group)
	}
	return spaces
}

// fileLayout is the on-disk shape shared by the JSON and YAML decoders.
// Rectangles are written as [x, y, w, h] tuples.
type fileLayout struct {
	Width  float64     `json:"width" yaml:"width"`
	Height float64     `json:"height" yaml:"height"`
	Rects  [][]float64 `json:"rects" yaml:"rects"`
	Groups [][]int     `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Load reads a layout file, choosing the decoder from the file extension
// (.json, .yaml or .yml).
func Load(ctx context.Context, path string, log logging.Logger) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %q: %w", path, err)
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}

	l, err := Decode(ctx, bytes.NewReader(data), format, log)
	if err != nil {
		return nil, fmt.Errorf("decode layout %q: %w", path, err)
	}
	return l, nil
}

// Decode parses a layout in the given format ("json" or "yaml").
func Decode(ctx context.Context, r io.Reader, format string, log logging.Logger) (*Layout, error) {
	if log == nil {
		log = logging.Noop()
	}

	var raw fileLayout
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("%w: %gx%g", ErrInvalidDimensions, raw.Width, raw.Height)
	}

	l := &Layout{
		Rects:  make([]*model.Rect, len(raw.Rects)),
		Width:  raw.Width,
		Height: raw.Height,
		Groups: raw.Groups,
	}
	for i, entry := range raw.Rects {
		rect, err := parseRect(entry, raw.Width, raw.Height)
		if err != nil {
			log.Warn(ctx, "ignoring layout entry", logging.Int("index", i), logging.Err(err))
			continue
		}
		l.Rects[i] = &rect
	}
	return l, nil
}

// parseRect turns an [x, y, w, h] tuple into a rectangle that lies entirely
// inside a width x height image.
func parseRect(entry []float64, width, height float64) (model.Rect, error) {
	if len(entry) != 4 {
		return model.Rect{}, fmt.Errorf("%w: want 4 values, got %d", ErrMalformedRect, len(entry))
	}
	for _, v := range entry {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Rect{}, fmt.Errorf("%w: non-finite value in %v", ErrMalformedRect, entry)
		}
	}
	r := model.Rect{X: entry[0], Y: entry[1], W: entry[2], H: entry[3]}
	if r.W <= 0 || r.H <= 0 {
		return model.Rect{}, fmt.Errorf("%w: non-positive size %gx%g", ErrMalformedRect, r.W, r.H)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > width || r.Y+r.H > height {
		return model.Rect{}, fmt.Errorf("%w: [%g, %g, %g, %g] outside %gx%g image",
			ErrMalformedRect, r.X, r.Y, r.W, r.H, width, height)
	}
	return r, nil
}
