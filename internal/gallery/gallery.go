// Package gallery manages the flat directory of enrolled reference images.
package gallery

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/fingerprint"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDuplicate is returned by Enroll when a near-identical image is already enrolled.
var ErrDuplicate = errors.New("image is already enrolled")

// Dir is a directory of reference face images.
type Dir struct {
	path   string
	logger *zap.Logger
}

// Open returns the gallery at path, creating the directory when missing.
func Open(path string, logger *zap.Logger) (*Dir, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create gallery dir: %w", err)
	}
	return &Dir{path: path, logger: logger}, nil
}

// Path returns the gallery directory.
func (d *Dir) Path() string {
	return d.path
}

// Entry is one file in the gallery. It is decoded lazily.
type Entry struct {
	name string
	path string
}

// Name returns the file name of the entry.
func (e Entry) Name() string { return e.name }

// Path returns the full path of the entry.
func (e Entry) Path() string { return e.path }

// Decode reads and decodes the entry.
func (e Entry) Decode() (image.Image, error) {
	return DecodeFile(e.path)
}

// Entries lists the regular, non-hidden files of the gallery sorted by name.
// Every call takes a fresh snapshot of the directory.
func (d *Dir) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !de.Type().IsRegular() {
			continue
		}
		entries = append(entries, Entry{name: name, path: filepath.Join(d.path, name)})
	}
	// os.ReadDir already sorts by name; keep the order explicit.
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	return entries, nil
}

// Sources returns the gallery entries as matcher image sources.
func (d *Dir) Sources() ([]faceauth.ImageSource, error) {
	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}
	sources := make([]faceauth.ImageSource, len(entries))
	for i := range entries {
		sources[i] = entries[i]
	}
	return sources, nil
}

// DecodeFile decodes an image file in any registered format.
// Missing, unreadable and undecodable files wrap faceauth.ErrDecodeFailure.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faceauth.ErrDecodeFailure, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", faceauth.ErrDecodeFailure, filepath.Base(path), err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", faceauth.ErrDecodeFailure, filepath.Base(path))
	}
	return img, nil
}

// EnrollOptions controls how a new face is added.
type EnrollOptions struct {
	// Name is an optional person name used as the file prefix.
	Name string
	// DuplicateDistance is the max perceptual hash distance treated as a duplicate.
	// Negative disables the check.
	DuplicateDistance int
}

// Enroll stores img as a new JPEG reference image and returns its path.
// The file is written to a hidden temporary name and hard-linked into place, so
// readers never see a partial image and existing entries are never overwritten.
func (d *Dir) Enroll(img image.Image, opts EnrollOptions) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", fmt.Errorf("%w: nothing to enroll", faceauth.ErrDecodeFailure)
	}

	if opts.DuplicateDistance >= 0 {
		dup, err := d.FindDuplicate(img, opts.DuplicateDistance)
		if err != nil {
			return "", err
		}
		if dup != "" {
			return "", fmt.Errorf("%w as %s", ErrDuplicate, dup)
		}
	}

	prefix := facematch.Slug(opts.Name)
	if prefix == "" {
		prefix = constants.DefaultEnrollPrefix
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.EnrollJPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode face: %w", err)
	}

	tmp, err := os.CreateTemp(d.path, ".enroll-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful link

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write face: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write face: %w", err)
	}

	n, err := d.nextIndex(prefix)
	if err != nil {
		return "", err
	}
	for ; ; n++ {
		target := filepath.Join(d.path, fmt.Sprintf("%s_%d.jpg", prefix, n))
		// Link fails if target exists, unlike rename.
		err := os.Link(tmpName, target)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to store face: %w", err)
		}
		d.logger.Info("enrolled face", zap.String("path", target))
		return target, nil
	}
}

// nextIndex returns one past the highest index used by <prefix>_<n>.* files.
func (d *Dir) nextIndex(prefix string) (int, error) {
	entries, err := d.Entries()
	if err != nil {
		return 0, err
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)\.[^.]+$`)
	next := 0
	for _, e := range entries {
		m := re.FindStringSubmatch(e.name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// FindDuplicate returns the name of an entry whose perceptual hashes are within
// maxDistance of img, or "" when there is none. Undecodable entries are ignored.
func (d *Dir) FindDuplicate(img image.Image, maxDistance int) (string, error) {
	entries, err := d.Entries()
	if err != nil {
		return "", err
	}
	want := fingerprint.Of(img)
	for _, e := range entries {
		existing, err := e.Decode()
		if err != nil {
			d.logger.Debug("skipping undecodable entry", zap.String("entry", e.name), zap.Error(err))
			continue
		}
		if want.Duplicate(fingerprint.Of(existing), maxDistance) {
			return e.name, nil
		}
	}
	return "", nil
}
