package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/pkg/math"
)

var pointcloudCmd = &cobra.Command{
	Use:   "pointcloud",
	Short: "Summarize the point cloud the backend segments",
	Long:  "Fetch the point cloud sampled from the model currently loaded for segmentation and print its size and bounds.",
	Args:  cobra.NoArgs,
	RunE:  runPointCloud,
}

func init() {
	rootCmd.AddCommand(pointcloudCmd)
}

func runPointCloud(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pc, err := newClient(cfg).PointCloud(cmd.Context())
	if err != nil {
		return err
	}

	b := scene.EmptyBounds()
	for i := 0; i+2 < len(pc.XYZ); i += 3 {
		b.Extend(math.V3(pc.XYZ[i], pc.XYZ[i+1], pc.XYZ[i+2]))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model:  %s\n", pc.ModelID)
	fmt.Fprintf(out, "points: %d\n", pc.NumPoints)
	fmt.Fprintf(out, "colors: %t\n", len(pc.RGB) == len(pc.XYZ) && len(pc.RGB) > 0)
	if !b.IsEmpty() {
		fmt.Fprintf(out, "min:    %.4f,%.4f,%.4f\n", b.Min.X, b.Min.Y, b.Min.Z)
		fmt.Fprintf(out, "max:    %.4f,%.4f,%.4f\n", b.Max.X, b.Max.Y, b.Max.Z)
	}
	return nil
}
