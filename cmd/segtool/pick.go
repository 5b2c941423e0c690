package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/instructmesh/internal/engine/picking"
)

var pickOpts struct {
	at string
}

var pickCmd = &cobra.Command{
	Use:   "pick <model>",
	Short: "Cast a ray through a pixel of the default view and print the hit",
	Long: `Frame the model the way the viewer does, cast a ray through the pixel given
by --at (in a window of the configured size) and print the nearest hit in
world and model space. The model-space point can be passed to
"segtool segment --prompt".`,
	Args: cobra.ExactArgs(1),
	RunE: runPick,
}

func init() {
	pickCmd.Flags().StringVar(&pickOpts.at, "at", "", "pixel x,y (default: window center)")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	viewer, err := openModel(cmd.Context(), cfg, newClient(cfg), args[0])
	if err != nil {
		return err
	}

	w, h := viewer.Size()
	x, y := float32(w)/2, float32(h)/2
	if pickOpts.at != "" {
		if _, err := fmt.Sscanf(pickOpts.at, "%g,%g", &x, &y); err != nil {
			return fmt.Errorf("--at %q: want x,y: %w", pickOpts.at, err)
		}
	}

	rect := picking.Rect{Width: float32(w), Height: float32(h)}
	ev := picking.PointerEvent{ClientX: x, ClientY: y}
	hit, ok := picking.Mapper{}.Pick(ev, rect, viewer.Camera(), viewer.Model())

	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintf(out, "no intersection at %g,%g\n", x, y)
		return nil
	}
	m := viewer.Model().ToModel(hit.Point)
	fmt.Fprintf(out, "mesh %d face %d at distance %.4f\n", hit.MeshIndex, hit.Face, hit.Distance)
	fmt.Fprintf(out, "world %.5f,%.5f,%.5f\n", hit.Point.X, hit.Point.Y, hit.Point.Z)
	fmt.Fprintf(out, "model %.5f,%.5f,%.5f\n", m.X, m.Y, m.Z)
	return nil
}
