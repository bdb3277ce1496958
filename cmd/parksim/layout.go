package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/internal/report"
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/spf13/cobra"
)

func newLayoutCmd(global *globalOptions) *cobra.Command {
	var (
		path   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the space records derived from a layout file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return describeLayout(cmd.Context(), path, format, cmd.OutOrStdout(), global.logger())
		},
	}
	cmd.Flags().StringVarP(&path, "layout", "l", "configs/lot.yaml", "layout file (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

type spaceView struct {
	ID                 string      `json:"id"`
	Section            string      `json:"section"`
	IsGroup            bool        `json:"is_group"`
	Members            []int       `json:"members,omitempty"`
	DistanceToEntrance float64     `json:"distance_to_entrance"`
	Position           *[4]float64 `json:"position,omitempty"`
}

func describeLayout(ctx context.Context, path, format string, out io.Writer, log logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lay, err := layout.Load(ctx, path, log)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	spaces := lay.Spaces(ctx, now, log)

	switch format {
	case "json":
		views := make([]spaceView, 0, len(spaces))
		for _, s := range spaces {
			v := spaceView{
				ID:                 s.ID,
				Section:            string(s.Section),
				IsGroup:            s.IsGroup,
				Members:            s.MemberSpaces,
				DistanceToEntrance: s.DistanceToEntrance,
			}
			if s.Position != nil {
				v.Position = &[4]float64{s.Position.X, s.Position.Y, s.Position.W, s.Position.H}
			}
			views = append(views, v)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "table", "":
		return report.NewTextRenderer(out).Render(ctx, ledger.NewSnapshot(spaces, nil, now), lay)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
