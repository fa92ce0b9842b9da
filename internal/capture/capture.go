// Package capture runs the camera loop: it grabs frames, finds the operator's
// face with a Haar cascade and forwards key presses to the station.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/station"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrFrameGrab is returned when the camera stops delivering frames.
var ErrFrameGrab = errors.New("failed to grab frame")

// Station handles one key press per frame.
type Station interface {
	Handle(ctx context.Context, key int, face image.Image) (station.Outcome, error)
}

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Run drives st from the camera until ctx is canceled, the operator quits,
// or a frame cannot be read. The camera, cascade and windows are released on
// every exit path.
func Run(ctx context.Context, cfg config.CameraConfig, st Station, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	cam, err := gocv.OpenVideoCapture(parseDevice(cfg.Device))
	if err != nil {
		return fmt.Errorf("failed to open camera %q: %w", cfg.Device, err)
	}
	defer cam.Close()

	classifier := gocv.NewCascadeClassifier()
	defer classifier.Close()
	if !classifier.Load(cfg.Cascade) {
		return fmt.Errorf("failed to load face cascade %s", cfg.Cascade)
	}

	l := &loop{
		cfg:        cfg,
		station:    st,
		classifier: &classifier,
		logger:     logger,
	}

	if cfg.Window {
		preview := gocv.NewWindow(constants.PreviewWindowTitle)
		defer preview.Close()
		faceWin := gocv.NewWindow(constants.FaceWindowTitle)
		defer faceWin.Close()

		l.preview, l.faceWin = preview, faceWin
		l.keys = windowKeys{wait: preview.WaitKey, ms: int(constants.KeyPollInterval.Milliseconds())}
	} else {
		l.keys = NewLineKeys(ctx, os.Stdin)
		logger.Info("running headless, type s, a or q followed by enter")
	}

	logger.Info("camera loop started",
		zap.String("device", cfg.Device),
		zap.Bool("window", cfg.Window),
	)
	return l.run(ctx, cam)
}

type loop struct {
	cfg        config.CameraConfig
	station    Station
	classifier *gocv.CascadeClassifier
	keys       KeySource
	preview    *gocv.Window
	faceWin    *gocv.Window
	logger     *zap.Logger

	lastFace image.Rectangle
	tracking bool
}

func (l *loop) run(ctx context.Context, cam *gocv.VideoCapture) error {
	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("camera loop stopped")
			return nil
		default:
		}

		if !cam.Read(&frame) || frame.Empty() {
			return ErrFrameGrab
		}

		face, err := l.face(frame)
		if err != nil {
			l.logger.Warn("failed to crop face", zap.Error(err))
		}
		if l.preview != nil {
			l.preview.IMShow(frame)
		}

		out, err := l.station.Handle(ctx, l.keys.Next(), face)
		if err != nil {
			l.logger.Error("key handling failed", zap.Error(err))
			continue
		}
		switch {
		case out.Quit:
			l.logger.Info("quit requested")
			return nil
		case out.NoFace:
			l.logger.Info("no face detected in frame")
		case out.Enrolled != "":
			l.logger.Info("face saved", zap.String("path", out.Enrolled))
		}
	}
}

// face returns the 112x112 crop of the largest face in frame, or nil.
// It draws the detection box onto frame.
func (l *loop) face(frame gocv.Mat) (image.Image, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	rects := l.classifier.DetectMultiScaleWithParams(gray,
		l.cfg.ScaleFactor, l.cfg.MinNeighbors, 0, image.Point{}, image.Point{})
	largest, ok := facematch.LargestRect(rects)
	l.track(largest, ok)
	if !ok {
		return nil, nil
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	rect := facematch.SquareCrop(largest, bounds)
	if rect.Empty() {
		return nil, nil
	}

	region := frame.Region(rect)
	defer region.Close()
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(region, &resized, image.Pt(faceauth.InputSize, faceauth.InputSize), 0, 0, gocv.InterpolationLinear)

	img, err := resized.ToImage()
	if err != nil {
		return nil, err
	}

	if l.faceWin != nil {
		l.faceWin.IMShow(resized)
	}
	gocv.Rectangle(&frame, rect, boxColor, 2)
	return img, nil
}

func (l *loop) track(rect image.Rectangle, ok bool) {
	switch {
	case ok && !l.tracking:
		l.logger.Debug("face appeared", zap.Stringer("rect", rect))
	case ok && !facematch.SameFace(l.lastFace, rect, constants.FaceTrackIoU):
		l.logger.Debug("face changed", zap.Stringer("rect", rect))
	case !ok && l.tracking:
		l.logger.Debug("face lost")
	}
	l.lastFace, l.tracking = rect, ok
}

// parseDevice turns a numeric device into a camera index; anything else is
// passed through as a file name or stream URL.
func parseDevice(device string) any {
	if id, err := strconv.Atoi(device); err == nil {
		return id
	}
	return device
}
