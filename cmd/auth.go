package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var authCmd = &cobra.Command{
	Use:   "auth <probe-image>",
	Short: "Check whether a face image matches an enrolled face",
	Long: `Embed a probe face image and compare it against every image in the gallery.

The probe is authorized when its cosine similarity to an enrolled face is
strictly greater than the threshold. Gallery images that cannot be decoded
are skipped; a probe that cannot be decoded is an error.

Examples:
  # Check a cropped face against the default gallery
  face-gate auth probe.jpg

  # Stop at the first entry above a stricter threshold
  face-gate auth probe.jpg --threshold 0.7 --policy first

  # Output as JSON
  face-gate auth probe.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().Float64("threshold", faceauth.DefaultThreshold, "Minimum cosine similarity for a match (exclusive)")
	authCmd.Flags().String("policy", string(faceauth.BestMatch), "Gallery scan policy: best or first")
	authCmd.Flags().Bool("json", false, "Output as JSON")
}

// AuthOutput is the JSON output of the auth command
type AuthOutput struct {
	AttemptID string                `json:"attempt_id"`
	Probe     string                `json:"probe"`
	Backend   string                `json:"backend"`
	Threshold float64               `json:"threshold"`
	Policy    faceauth.Policy       `json:"policy"`
	Result    *faceauth.MatchResult `json:"result"`
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	attemptID := uuid.NewString()
	log := logging.WithOperation(s.logger, "authenticate", attemptID)

	probe, err := readProbe(args[0])
	if err != nil {
		return logging.NewOperationError("authenticate", attemptID, err)
	}
	sources, err := s.gallery.Sources()
	if err != nil {
		return logging.NewOperationError("authenticate", attemptID, err)
	}

	res, err := s.matcher.Authenticate(ctx, probe, sources)
	if err != nil {
		return logging.NewOperationError("authenticate", attemptID, err)
	}
	log.Info("authorization attempt",
		zap.String("probe", args[0]),
		zap.Bool("authorized", res.Authorized),
		zap.Float64("score", res.Score),
		zap.Int("compared", res.Compared),
		zap.Int("skipped", res.Skipped),
	)

	if jsonOutput {
		return outputJSON(AuthOutput{
			AttemptID: attemptID,
			Probe:     args[0],
			Backend:   s.embedder.Name(),
			Threshold: s.matcher.Threshold(),
			Policy:    s.matcher.Policy(),
			Result:    res,
		})
	}

	if res.Authorized {
		fmt.Printf("AUTHORIZED  score %.4f  (matched %s)\n", res.Score, res.Entry)
	} else {
		fmt.Printf("DENIED      closest %.4f  (threshold %.2f)\n", res.Closest, s.matcher.Threshold())
	}
	fmt.Printf("Compared %d gallery images, skipped %d\n", res.Compared, res.Skipped)
	return nil
}
