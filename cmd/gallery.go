package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/fingerprint"
	"github.com/kozaktomas/face-gate/internal/gallery"
	"github.com/kozaktomas/face-gate/internal/index"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the gallery of enrolled faces",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled face images",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Decode and embed every gallery image and report the ones that would be skipped",
	Long: `Run every gallery image through the same decode, preprocess and embed
pipeline used during authorization. Images that fail are skipped at match
time; this command lists them so they can be replaced.`,
	Args: cobra.NoArgs,
	RunE: runGalleryCheck,
}

var galleryIdentifyCmd = &cobra.Command{
	Use:   "identify <probe-image>",
	Short: "Show the enrolled faces most similar to a probe image",
	Long: `Embed the whole gallery into an in-memory nearest-neighbor index and list
the closest entries to the probe, most similar first.

Examples:
  face-gate gallery identify probe.jpg
  face-gate gallery identify probe.jpg --top 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryIdentify,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryCheckCmd)
	galleryCmd.AddCommand(galleryIdentifyCmd)

	galleryCheckCmd.Flags().Bool("json", false, "Output as JSON")

	galleryIdentifyCmd.Flags().Int("top", constants.DefaultIdentifyTopK, "Number of entries to show")
	galleryIdentifyCmd.Flags().Float64("threshold", faceauth.DefaultThreshold, "Minimum cosine similarity for a match (exclusive)")
	galleryIdentifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := gallery.Open(cfg.Gallery.Dir, nil)
	if err != nil {
		return err
	}
	entries, err := dir.Entries()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Printf("Gallery %s is empty\n", dir.Path())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED\tPHASH\tDHASH")
	fmt.Fprintln(w, "----\t----\t--------\t-----\t-----")
	for _, e := range entries {
		data, err := os.ReadFile(e.Path())
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", e.Name())
			continue
		}
		modified := "-"
		if info, err := os.Stat(e.Path()); err == nil {
			modified = info.ModTime().Format(time.DateTime)
		}
		pHash, dHash := "undecodable", ""
		if hashes, err := fingerprint.Decode(data); err == nil {
			pHash, dHash = hashes.PHash(), hashes.DHash()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", e.Name(), len(data), modified, pHash, dHash)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d images in %s\n", len(entries), dir.Path())
	return nil
}

// CheckResult is the status of one gallery image
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, undecodable, degenerate, error
	Dim    int    `json:"dim,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func runGalleryCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.gallery.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("Gallery %s is empty\n", s.gallery.Path())
		return nil
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Checking gallery"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]CheckResult, 0, len(entries))
	var usable int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := checkEntry(ctx, s, e)
		if r.Status == "ok" {
			usable++
		}
		results = append(results, r)
		if bar != nil {
			bar.Add(1)
		}
	}

	if jsonOutput {
		return outputJSON(results)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tDETAIL")
	fmt.Fprintln(w, "----\t------\t------")
	for _, r := range results {
		detail := r.Detail
		if r.Status == "ok" {
			detail = fmt.Sprintf("%d dimensions", r.Dim)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, detail)
	}
	w.Flush()
	fmt.Printf("\nUsable: %d of %d images\n", usable, len(results))
	return nil
}

func checkEntry(ctx context.Context, s *session, e gallery.Entry) CheckResult {
	r := CheckResult{Name: e.Name()}
	img, err := e.Decode()
	if err != nil {
		r.Status, r.Detail = "undecodable", err.Error()
		return r
	}
	emb, err := s.matcher.Embed(ctx, img)
	if err != nil {
		r.Status, r.Detail = "error", err.Error()
		return r
	}
	if err := emb.CheckNorm(); err != nil {
		r.Status, r.Detail = "degenerate", err.Error()
		return r
	}
	r.Status, r.Dim = "ok", len(emb)
	return r
}

// IdentifyOutput is the JSON output of gallery identify
type IdentifyOutput struct {
	Probe     string      `json:"probe"`
	Threshold float64     `json:"threshold"`
	Indexed   int         `json:"indexed"`
	Skipped   int         `json:"skipped"`
	Hits      []index.Hit `json:"hits"`
}

func runGalleryIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	top := mustGetInt(cmd, "top")
	jsonOutput := mustGetBool(cmd, "json")
	if top <= 0 {
		return fmt.Errorf("--top must be positive, got %d", top)
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	probeImg, err := readProbe(args[0])
	if err != nil {
		return err
	}
	probe, err := s.matcher.Embed(ctx, probeImg)
	if err != nil {
		return logging.NewOperationError("identify", "", err)
	}

	entries, err := s.gallery.Entries()
	if err != nil {
		return err
	}
	items := make([]index.Item, 0, len(entries))
	undecodable := 0
	for _, e := range entries {
		img, err := e.Decode()
		if err != nil {
			s.logger.Debug("skipping gallery entry", zap.String("entry", e.Name()), zap.Error(err))
			undecodable++
			continue
		}
		emb, err := s.matcher.Embed(ctx, img)
		if err != nil {
			return logging.NewOperationError("identify", "", fmt.Errorf("%s: %w", e.Name(), err))
		}
		items = append(items, index.Item{Name: e.Name(), Embedding: emb})
	}

	ix, err := index.Build(items)
	if err != nil {
		return err
	}
	hits, err := ix.Search(probe, top)
	if err != nil {
		return logging.NewOperationError("identify", "", err)
	}

	threshold := s.matcher.Threshold()
	if jsonOutput {
		return outputJSON(IdentifyOutput{
			Probe:     args[0],
			Threshold: threshold,
			Indexed:   ix.Len(),
			Skipped:   ix.Skipped() + undecodable,
			Hits:      hits,
		})
	}

	if len(hits) == 0 {
		fmt.Println("No usable gallery images")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tENTRY\tSIMILARITY\tMATCH")
	fmt.Fprintln(w, "----\t-----\t----------\t-----")
	for i, h := range hits {
		match := ""
		if h.Similarity > threshold {
			match = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", i+1, h.Name, h.Similarity, match)
	}
	w.Flush()
	fmt.Printf("\nIndexed %d images, skipped %d\n", ix.Len(), ix.Skipped()+undecodable)
	return nil
}
