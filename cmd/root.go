package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-gate",
	Short: "A face-recognition gate for an embedded camera",
	Long: `Face Gate captures a face from a webcam, embeds it with a pretrained
face-embedding model and compares it against a directory of enrolled faces
using cosine similarity. The result drives two indicator outputs
(authorized / denied).

Configuration comes from FACEGATE_* environment variables (a .env file in
the working directory is loaded when present); flags override both.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context
// so deferred cleanup (model, camera, GPIO) always runs.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("gallery", "", "Directory of enrolled face images (overrides FACEGATE_GALLERY_DIR)")
	rootCmd.PersistentFlags().String("backend", "", "Embedding backend: onnx, opencv or lbph (overrides FACEGATE_MODEL_BACKEND)")
	rootCmd.PersistentFlags().String("model", "", "Path to the face-embedding model (overrides FACEGATE_MODEL_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides FACEGATE_LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
