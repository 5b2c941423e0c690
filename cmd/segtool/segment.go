package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/instructmesh/internal/loader"
	"github.com/Faultbox/instructmesh/internal/segmentation"
)

var segmentOpts struct {
	generation string
	prompts    []string
	out        string
	clear      bool
}

var segmentCmd = &cobra.Command{
	Use:   "segment <model>",
	Short: "Run point-prompt segmentation on a model",
	Long: `Load the model (path, URL or /files/... backend path), enable segmentation
for its generation id, send every --prompt in order and report the segment.
Prompt coordinates are in model space, as printed by "segtool pick".`,
	Example: `  segtool segment /files/abc/model.glb --generation abc \
    --prompt 0.1,0.2,0.3 --prompt 0,0,0.5:neg --out painted.glb`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

func init() {
	f := segmentCmd.Flags()
	f.StringVarP(&segmentOpts.generation, "generation", "g", "", "generation id the model belongs to (required)")
	f.StringArrayVarP(&segmentOpts.prompts, "prompt", "p", nil, "prompt point x,y,z[:pos|neg], repeatable")
	f.StringVarP(&segmentOpts.out, "out", "o", "", "write the painted mesh to this GLB file")
	f.BoolVar(&segmentOpts.clear, "clear", false, "clear the backend prompts when done")
	_ = segmentCmd.MarkFlagRequired("generation")
	rootCmd.AddCommand(segmentCmd)
}

func runSegment(cmd *cobra.Command, args []string) error {
	prompts := make([]segmentation.PromptPoint, 0, len(segmentOpts.prompts))
	for _, s := range segmentOpts.prompts {
		p, err := parsePrompt(s)
		if err != nil {
			return err
		}
		prompts = append(prompts, p)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client := newClient(cfg)

	viewer, err := openModel(ctx, cfg, client, args[0])
	if err != nil {
		return err
	}
	model := viewer.Model()
	out := cmd.OutOrStdout()

	session := segmentation.NewSession(client, viewer, segmentation.NewPainter(cfg.Segmentation))
	viewer.OnModelReplaced(session.ModelReplaced)

	var lastErr error
	session.OnStatus(func(st segmentation.Status) {
		lastErr = st.Err
		if st.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", st.Message, st.Err)
			return
		}
		fmt.Fprintln(out, st.Message)
	})

	if err := session.Enable(ctx, segmentOpts.generation); err != nil {
		return err
	}
	if err := session.Await(ctx); err != nil {
		return err
	}
	if session.State() != segmentation.Enabled {
		return fmt.Errorf("segmentation not enabled: %w", lastErr)
	}

	for _, p := range prompts {
		if err := session.Click(ctx, model.ToWorld(p.Point), p.Sign); err != nil {
			return err
		}
		if err := session.Await(ctx); err != nil {
			return err
		}
	}

	if seg := session.Segment(); seg != nil {
		fmt.Fprintf(out, "segment %d: %d of %d points, confidence %.3f\n",
			seg.ID, len(seg.Points), seg.TotalPoints, seg.Confidence)
	} else if len(prompts) > 0 {
		fmt.Fprintln(out, "no segment")
	}

	if segmentOpts.out != "" {
		if err := loader.SaveGLB(model, segmentOpts.out); err != nil {
			return fmt.Errorf("exporting %s: %w", segmentOpts.out, err)
		}
		fmt.Fprintf(out, "wrote %s\n", segmentOpts.out)
	}

	if segmentOpts.clear {
		session.Clear(ctx)
		return session.Await(ctx)
	}
	return nil
}
