package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/kozaktomas/face-gate/internal/faceauth"
	"github.com/kozaktomas/face-gate/internal/gallery"
	"github.com/kozaktomas/face-gate/internal/logging"
	"go.uber.org/zap/zaptest"
)

type fakeAuth struct {
	result *faceauth.MatchResult
	err    error
	calls  int
}

func (f *fakeAuth) Authenticate(_ context.Context, _ image.Image, _ []faceauth.ImageSource) (*faceauth.MatchResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeGallery struct {
	enrolled  []string
	enrollErr error
	listErr   error
}

func (f *fakeGallery) Enroll(_ image.Image, opts gallery.EnrollOptions) (string, error) {
	if f.enrollErr != nil {
		return "", f.enrollErr
	}
	path := fmt.Sprintf("authorized_faces/face_%d.jpg", len(f.enrolled))
	f.enrolled = append(f.enrolled, path)
	return path, nil
}

func (f *fakeGallery) Sources() ([]faceauth.ImageSource, error) {
	return nil, f.listErr
}

type fakeLights struct {
	authorized bool
	denied     bool
	clears     int
}

func (f *fakeLights) Show(authorized bool) error {
	f.authorized, f.denied = authorized, !authorized
	return nil
}

func (f *fakeLights) Clear() error {
	f.authorized, f.denied = false, false
	f.clears++
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var face = image.NewRGBA(image.Rect(0, 0, 112, 112))

func newStation(t *testing.T, auth *fakeAuth, g *fakeGallery, lights *fakeLights, clock *fakeClock) *Station {
	t.Helper()
	return New(auth, g, lights, 4*time.Second,
		WithClock(clock.now),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestHandleAuthenticate(t *testing.T) {
	tests := []struct {
		name           string
		authorized     bool
		wantAuthorized bool
		wantDenied     bool
	}{
		{"authorized lights green", true, true, false},
		{"denied lights red", false, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth := &fakeAuth{result: &faceauth.MatchResult{Authorized: tc.authorized, Index: -1}}
			lights := &fakeLights{}
			s := newStation(t, auth, &fakeGallery{}, lights, &fakeClock{t: time.Unix(0, 0)})

			out, err := s.Handle(context.Background(), KeyAuth, face)
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if out.Result == nil || out.Result.Authorized != tc.authorized {
				t.Errorf("Result = %+v, want authorized=%v", out.Result, tc.authorized)
			}
			if lights.authorized != tc.wantAuthorized || lights.denied != tc.wantDenied {
				t.Errorf("lights = %v/%v, want %v/%v", lights.authorized, lights.denied, tc.wantAuthorized, tc.wantDenied)
			}
		})
	}
}

func TestHoldExpiresOnIdleFrames(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	lights := &fakeLights{}
	s := newStation(t, &fakeAuth{result: &faceauth.MatchResult{Authorized: true}}, &fakeGallery{}, lights, clock)

	if _, err := s.Handle(context.Background(), KeyAuth, face); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	clock.advance(3 * time.Second)
	if _, err := s.Handle(context.Background(), KeyNone, nil); err != nil {
		t.Fatalf("idle Handle failed: %v", err)
	}
	if !lights.authorized {
		t.Error("indicator should stay on during the hold")
	}

	clock.advance(time.Second)
	if _, err := s.Handle(context.Background(), KeyNone, nil); err != nil {
		t.Fatalf("idle Handle failed: %v", err)
	}
	if lights.authorized || lights.denied {
		t.Error("indicators should be off once the hold expires")
	}

	clears := lights.clears
	if _, err := s.Handle(context.Background(), KeyNone, nil); err != nil {
		t.Fatalf("idle Handle failed: %v", err)
	}
	if lights.clears != clears {
		t.Error("idle frames should not keep clearing dark indicators")
	}
}

func TestOtherKeyClearsImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	lights := &fakeLights{}
	s := newStation(t, &fakeAuth{result: &faceauth.MatchResult{Authorized: false}}, &fakeGallery{}, lights, clock)

	if _, err := s.Handle(context.Background(), KeyAuth, face); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, err := s.Handle(context.Background(), 'x', face); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if lights.authorized || lights.denied {
		t.Error("any other key should turn both indicators off")
	}
}

func TestHandleSave(t *testing.T) {
	g := &fakeGallery{}
	s := newStation(t, &fakeAuth{}, g, &fakeLights{}, &fakeClock{})

	out, err := s.Handle(context.Background(), KeySave, face)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Enrolled != "authorized_faces/face_0.jpg" {
		t.Errorf("Enrolled = %q", out.Enrolled)
	}

	out, err = s.Handle(context.Background(), KeySave, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !out.NoFace || len(g.enrolled) != 1 {
		t.Errorf("save without a face should do nothing, got %+v", out)
	}
}

func TestHandleSaveDuplicate(t *testing.T) {
	g := &fakeGallery{enrollErr: fmt.Errorf("%w as face_0.jpg", gallery.ErrDuplicate)}
	s := newStation(t, &fakeAuth{}, g, &fakeLights{}, &fakeClock{})

	out, err := s.Handle(context.Background(), KeySave, face)
	if err != nil {
		t.Fatalf("duplicate enrollment should not be an error, got %v", err)
	}
	if out.Enrolled != "" {
		t.Errorf("Enrolled = %q, want empty", out.Enrolled)
	}
}

func TestHandleAuthenticateWithoutFace(t *testing.T) {
	auth := &fakeAuth{}
	s := newStation(t, auth, &fakeGallery{}, &fakeLights{}, &fakeClock{})

	out, err := s.Handle(context.Background(), KeyAuth, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !out.NoFace || auth.calls != 0 {
		t.Errorf("authenticate without a face should not run, got %+v after %d calls", out, auth.calls)
	}
}

func TestHandleAuthenticateFailure(t *testing.T) {
	tests := []struct {
		name    string
		auth    *fakeAuth
		gallery *fakeGallery
		wantErr error
	}{
		{"probe failure", &fakeAuth{err: faceauth.ErrDegenerateEmbedding}, &fakeGallery{}, faceauth.ErrDegenerateEmbedding},
		{"gallery unreadable", &fakeAuth{}, &fakeGallery{listErr: errors.New("permission denied")}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lights := &fakeLights{authorized: true}
			s := newStation(t, tc.auth, tc.gallery, lights, &fakeClock{})

			_, err := s.Handle(context.Background(), KeyAuth, face)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			var opErr *logging.OperationError
			if !errors.As(err, &opErr) || opErr.Operation != "authenticate" || opErr.AttemptID == "" {
				t.Errorf("expected authenticate OperationError with attempt id, got %v", err)
			}
			if lights.authorized || lights.denied {
				t.Error("a failed attempt should leave both indicators off")
			}
		})
	}
}

func TestHandleQuit(t *testing.T) {
	s := newStation(t, &fakeAuth{}, &fakeGallery{}, &fakeLights{}, &fakeClock{})

	out, err := s.Handle(context.Background(), KeyQuit, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !out.Quit {
		t.Error("expected Quit")
	}
}
