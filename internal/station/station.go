// Package station turns operator key presses into enrollments, authorization
// attempts and indicator changes. It owns no hardware and never sleeps: the
// indicator hold is enforced on later frames.
package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/gallery"
	"github.com/kozaktomas/face-gate/internal/logging"
	"go.uber.org/zap"
)

// Keys understood by the station. KeyNone means no key was pressed this frame.
const (
	KeyNone = -1
	KeySave = 's'
	KeyAuth = 'a'
	KeyQuit = 'q'
)

// Authenticator decides whether a probe face is enrolled.
type Authenticator interface {
	Authenticate(ctx context.Context, probe image.Image, gallery []faceauth.ImageSource) (*faceauth.MatchResult, error)
}

// Gallery stores and lists enrolled faces.
type Gallery interface {
	Enroll(img image.Image, opts gallery.EnrollOptions) (string, error)
	Sources() ([]faceauth.ImageSource, error)
}

// Lights shows authorization results.
type Lights interface {
	Show(authorized bool) error
	Clear() error
}

// Outcome describes what a key press did.
type Outcome struct {
	Quit     bool
	NoFace   bool                  // the key needed a face but none was detected
	Enrolled string                // path of the saved face
	Result   *faceauth.MatchResult // authorization result
}

// Station is the key-driven controller of the capture loop.
type Station struct {
	auth    Authenticator
	gallery Gallery
	lights  Lights
	enroll  gallery.EnrollOptions
	hold    time.Duration
	now     func() time.Time
	logger  *zap.Logger

	lit       bool
	heldUntil time.Time
}

// Option configures a Station.
type Option func(*Station)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Station) { s.now = now }
}

// WithEnrollOptions sets the options used when saving faces.
func WithEnrollOptions(opts gallery.EnrollOptions) Option {
	return func(s *Station) { s.enroll = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Station) { s.logger = logger }
}

// New creates a station holding each authorization result for hold.
func New(auth Authenticator, g Gallery, lights Lights, hold time.Duration, opts ...Option) *Station {
	s := &Station{
		auth:    auth,
		gallery: g,
		lights:  lights,
		hold:    hold,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one frame. face is the cropped face of the frame, or nil
// when none was detected.
//
// 's' enrolls the face, 'a' authenticates it and lights the matching
// indicator for the hold duration, 'q' quits. Any other key turns both
// indicators off at once. Without a key press the indicators are turned off
// once the hold has expired.
func (s *Station) Handle(ctx context.Context, key int, face image.Image) (Outcome, error) {
	switch key {
	case KeyNone:
		return Outcome{}, s.expire()
	case KeyQuit:
		return Outcome{Quit: true}, nil
	case KeySave:
		return s.save(face)
	case KeyAuth:
		return s.authenticate(ctx, face)
	default:
		return Outcome{}, s.clear()
	}
}

func (s *Station) save(face image.Image) (Outcome, error) {
	if face == nil {
		s.logger.Info("no face to save")
		return Outcome{NoFace: true}, nil
	}
	path, err := s.gallery.Enroll(face, s.enroll)
	if errors.Is(err, gallery.ErrDuplicate) {
		s.logger.Info("face already enrolled", zap.Error(err))
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, logging.NewOperationError("enroll", "", err)
	}
	return Outcome{Enrolled: path}, nil
}

func (s *Station) authenticate(ctx context.Context, face image.Image) (Outcome, error) {
	if face == nil {
		s.logger.Info("no face to authenticate")
		return Outcome{NoFace: true}, nil
	}

	attemptID := uuid.NewString()
	log := logging.WithOperation(s.logger, "authenticate", attemptID)

	sources, err := s.gallery.Sources()
	if err != nil {
		return Outcome{}, s.fail(attemptID, err)
	}
	res, err := s.auth.Authenticate(ctx, face, sources)
	if err != nil {
		return Outcome{}, s.fail(attemptID, err)
	}

	if err := s.lights.Show(res.Authorized); err != nil {
		log.Warn("failed to set indicators", zap.Error(err))
	}
	s.lit = true
	s.heldUntil = s.now().Add(s.hold)

	log.Info("authorization attempt",
		zap.Bool("authorized", res.Authorized),
		zap.Float64("score", res.Score),
		zap.String("entry", res.Entry),
		zap.Int("compared", res.Compared),
		zap.Int("skipped", res.Skipped),
	)
	return Outcome{Result: res}, nil
}

// fail clears the indicators; a failed attempt never leaves a stale result lit.
func (s *Station) fail(attemptID string, err error) error {
	clearErr := s.clear()
	return logging.NewOperationError("authenticate", attemptID, errors.Join(err, clearErr))
}

func (s *Station) expire() error {
	if !s.lit || s.now().Before(s.heldUntil) {
		return nil
	}
	return s.clear()
}

func (s *Station) clear() error {
	s.lit = false
	if err := s.lights.Clear(); err != nil {
		return fmt.Errorf("failed to clear indicators: %w", err)
	}
	return nil
}
