package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-gate/internal/backend/lbph"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare <image-a> <image-b>",
	Short: "Print the similarity of two face images",
	Long: `Embed two face images with the configured backend and print their cosine
similarity and whether it would pass the match threshold.

Examples:
  face-gate compare alice_1.jpg alice_2.jpg

  # Use the model-free LBPH features
  face-gate compare --backend lbph alice_1.jpg bob.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().Float64("threshold", faceauth.DefaultThreshold, "Minimum cosine similarity for a match (exclusive)")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	embeddings := make([]faceauth.Embedding, len(args))
	for i, path := range args {
		img, err := readProbe(path)
		if err != nil {
			return err
		}
		emb, err := s.matcher.Embed(ctx, img)
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", path, err)
		}
		embeddings[i] = emb
	}

	sim, err := faceauth.CosineSimilarity(embeddings[0], embeddings[1])
	if err != nil {
		return err
	}

	fmt.Printf("Backend:     %s (%d dimensions)\n", s.embedder.Name(), len(embeddings[0]))
	fmt.Printf("Similarity:  %.4f\n", sim)
	if s.cfg.Model.Backend == config.BackendLBPH {
		chi, err := lbph.ChiSquare(embeddings[0], embeddings[1])
		if err != nil {
			return err
		}
		fmt.Printf("Chi-square:  %.4f\n", chi)
	}

	verdict := "different faces"
	if sim > s.matcher.Threshold() {
		verdict = "same face"
	}
	fmt.Printf("Threshold:   %.2f -> %s\n", s.matcher.Threshold(), verdict)
	return nil
}
