package cmd

import (
	"github.com/kozaktomas/face-gate/internal/capture"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/indicator"
	"github.com/kozaktomas/face-gate/internal/station"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the camera gate",
	Long: `Open the camera and wait for operator keys:

  s  save the detected face to the gallery
  a  authenticate the detected face; the authorized or denied indicator
     stays on for the hold duration (FACEGATE_HOLD, default 4s)
  q  quit

Any other key turns both indicators off. With --headless no preview window
is opened and keys are read from standard input, one per line.

Examples:
  face-gate run
  face-gate run --headless --indicator log --device /dev/video2`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Float64("threshold", faceauth.DefaultThreshold, "Minimum cosine similarity for a match (exclusive)")
	runCmd.Flags().String("policy", string(faceauth.BestMatch), "Gallery scan policy: best or first")
	runCmd.Flags().String("device", "", "Camera index, file or stream URL (overrides FACEGATE_CAMERA_DEVICE)")
	runCmd.Flags().String("indicator", "", "Indicator driver: gpio or log (overrides FACEGATE_INDICATOR)")
	runCmd.Flags().Bool("headless", false, "Do not open preview windows; read keys from stdin")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	lights, err := indicator.Open(s.cfg.Indicator, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lights.Close(); err != nil {
			s.logger.Warn("failed to release indicators", zap.Error(err))
		}
	}()

	st := station.New(s.matcher, s.gallery, lights, s.cfg.Indicator.Hold,
		station.WithEnrollOptions(enrollOptions(s.cfg, "", false)),
		station.WithLogger(s.logger),
	)

	s.logger.Info("gate ready",
		zap.String("backend", s.embedder.Name()),
		zap.String("gallery", s.gallery.Path()),
		zap.Float64("threshold", s.matcher.Threshold()),
		zap.String("policy", string(s.matcher.Policy())),
		zap.String("indicator", s.cfg.Indicator.Driver),
	)
	return capture.Run(ctx, s.cfg.Camera, st, s.logger)
}
