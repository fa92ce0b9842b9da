package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/gallery"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>...",
	Short: "Add face images to the gallery",
	Long: `Copy face images into the gallery as new reference images.

Each image is re-encoded as JPEG under a new name (<name>_<n>.jpg); existing
gallery files are never overwritten. Images that are perceptually identical
to an enrolled image are skipped unless --force is given.

Examples:
  # Enroll a cropped face
  face-gate enroll alice.jpg

  # Enroll several photos of the same person
  face-gate enroll --name "Jiří Novák" faces/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Person name used as the file name prefix")
	enrollCmd.Flags().Bool("force", false, "Enroll even when the image is already in the gallery")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dir, err := gallery.Open(cfg.Gallery.Dir, logger)
	if err != nil {
		return err
	}

	opts := enrollOptions(cfg, mustGetString(cmd, "name"), mustGetBool(cmd, "force"))

	var bar *progressbar.ProgressBar
	if len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Enrolling faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	var enrolled, duplicates, failed int
	var messages []string
	for _, path := range args {
		stored, err := enrollFile(dir, path, opts)
		switch {
		case errors.Is(err, gallery.ErrDuplicate):
			duplicates++
			messages = append(messages, fmt.Sprintf("skipped %s: %v", path, err))
		case err != nil:
			failed++
			logger.Error("enroll failed", zap.String("image", path), zap.Error(err))
			messages = append(messages, fmt.Sprintf("failed %s: %v", path, err))
		default:
			enrolled++
			messages = append(messages, fmt.Sprintf("enrolled %s as %s", path, filepath.Base(stored)))
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}

	for _, m := range messages {
		fmt.Println(m)
	}
	fmt.Printf("\nEnrolled: %d, duplicates: %d, failed: %d\n", enrolled, duplicates, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be enrolled", failed, len(args))
	}
	return nil
}

func enrollOptions(cfg *config.Config, name string, force bool) gallery.EnrollOptions {
	opts := gallery.EnrollOptions{Name: name, DuplicateDistance: cfg.Gallery.DuplicateDistance}
	if force {
		opts.DuplicateDistance = -1
	}
	return opts
}

func enrollFile(dir *gallery.Dir, path string, opts gallery.EnrollOptions) (string, error) {
	img, err := gallery.DecodeFile(path)
	if err != nil {
		return "", err
	}
	return dir.Enroll(img, opts)
}
