package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/signalsfoundry/parking-simulator/internal/allocation"
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/model"
)

// NoDataMessage is rendered in place of a lot with no spaces.
const NoDataMessage = "No parking data available"

// TextRenderer draws the lot as plain-text tables: individual stalls grouped
// by section, then groups with their orientation.
type TextRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextRenderer writes to out, or stdout when out is nil.
func NewTextRenderer(out io.Writer) *TextRenderer {
	if out == nil {
		out = os.Stdout
	}
	return &TextRenderer{out: out}
}

func (r *TextRenderer) Render(_ context.Context, snap *ledger.Snapshot, l *layout.Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Empty() {
		_, err := fmt.Fprintln(r.out, NoDataMessage)
		return err
	}

	st := snap.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Parking lot at %s: %d spaces, %d free, %d occupied (%.1f%%), %d active allocations\n",
		st.Timestamp.Format(time.RFC3339), st.Total, st.Free, st.Occupied, st.OccupancyRate, st.ActiveAllocations)

	individuals := lo.Reject(snap.Spaces, func(s *model.Space, _ int) bool { return s.IsGroup })
	slices.SortStableFunc(individuals, func(a, b *model.Space) int {
		return strings.Compare(string(a.Section), string(b.Section))
	})
	if len(individuals) > 0 {
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SECTION\tSPACE\tSTATE\tVEHICLE")
		for _, s := range individuals {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Section, s.ID, state(s), vehicle(s))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	groups := snap.Groups()
	if len(groups) > 0 {
		b.WriteString("\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GROUP\tMEMBERS\tORIENTATION\tSTATE\tVEHICLE")
		for _, g := range groups {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", g.ID, len(g.MemberSpaces), orientation(l, g), state(g), vehicle(g))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if pairs := allocation.OppositePairs(l, groups); len(pairs) > 0 {
			labels := lo.Map(pairs, func(p [2]string, _ int) string { return p[0] + "/" + p[1] })
			fmt.Fprintf(&b, "Opposite groups: %s\n", strings.Join(labels, ", "))
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

func state(s *model.Space) string {
	if !s.Occupied {
		return "free"
	}
	return "occupied"
}

func vehicle(s *model.Space) string {
	if s.VehicleID == "" {
		return "-"
	}
	return s.VehicleID
}

func orientation(l *layout.Layout, g *model.Space) string {
	vertical, ok := allocation.IsVertical(l, g)
	switch {
	case !ok:
		return "unknown"
	case vertical:
		return "vertical"
	default:
		return "horizontal"
	}
}
