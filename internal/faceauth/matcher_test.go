package faceauth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// tableEmbedder returns a fixed embedding keyed by the red value of the first pixel.
type tableEmbedder struct {
	table map[uint8]Embedding
	calls int
	fail  error
}

func (e *tableEmbedder) Embed(_ context.Context, t *Tensor) (Embedding, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	key := uint8(math.Round(float64(t.At(0, 0, 0))*128 + 127.5))
	emb, ok := e.table[key]
	if !ok {
		return nil, fmt.Errorf("no embedding for key %d", key)
	}
	return emb, nil
}

func (e *tableEmbedder) Name() string { return "table" }
func (e *tableEmbedder) Close() error { return nil }

type memSource struct {
	name string
	img  image.Image
	err  error
}

func (s memSource) Name() string { return s.name }

func (s memSource) Decode() (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.img, nil
}

func solid(name string, key uint8) memSource {
	return memSource{name: name, img: createSolidImage(40, 40, color.RGBA{key, 0, 0, 255})}
}

func broken(name string) memSource {
	return memSource{name: name, err: fmt.Errorf("%w: truncated file", ErrDecodeFailure)}
}

const (
	keyProbe      = 10
	keySeventy    = 20
	keyEighty     = 30
	keyOrthogonal = 40
	keyOpposite   = 50
	keyZero       = 60
)

func newTestEmbedder() *tableEmbedder {
	return &tableEmbedder{table: map[uint8]Embedding{
		keyProbe:      {1, 0},
		keySeventy:    {0.7, float32(math.Sqrt(1 - 0.49))},
		keyEighty:     {0.8, 0.6},
		keyOrthogonal: {0, 1},
		keyOpposite:   {-1, 0},
		keyZero:       {0, 0},
	}}
}

func newTestMatcher(t *testing.T, emb Embedder, opts ...Option) *Matcher {
	t.Helper()
	prep, err := NewPreprocessor(InterpolationNearest)
	if err != nil {
		t.Fatalf("NewPreprocessor failed: %v", err)
	}
	return NewMatcher(prep, emb, opts...)
}

func TestAuthenticatePolicies(t *testing.T) {
	gallery := []ImageSource{
		solid("a_seventy.jpg", keySeventy),
		solid("b_eighty.jpg", keyEighty),
		solid("c_same.jpg", keyProbe),
		solid("d_orthogonal.jpg", keyOrthogonal),
		solid("e_opposite.jpg", keyOpposite),
	}

	tests := []struct {
		name      string
		policy    Policy
		wantIndex int
		wantEntry string
		wantScore float64
		wantCalls int
	}{
		{"first match stops at first entry above threshold", FirstMatch, 0, "a_seventy.jpg", 0.7, 2},
		{"best match picks highest score", BestMatch, 2, "c_same.jpg", 1.0, 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emb := newTestEmbedder()
			m := newTestMatcher(t, emb, WithPolicy(tc.policy))

			res, err := m.Authenticate(context.Background(), createSolidImage(40, 40, color.RGBA{keyProbe, 0, 0, 255}), gallery)
			if err != nil {
				t.Fatalf("Authenticate failed: %v", err)
			}
			if !res.Authorized {
				t.Fatalf("expected authorized result, got %+v", res)
			}
			if res.Index != tc.wantIndex || res.Entry != tc.wantEntry {
				t.Errorf("matched %d (%s), want %d (%s)", res.Index, res.Entry, tc.wantIndex, tc.wantEntry)
			}
			if math.Abs(res.Score-tc.wantScore) > 1e-5 {
				t.Errorf("Score = %v, want %v", res.Score, tc.wantScore)
			}
			if emb.calls != tc.wantCalls {
				t.Errorf("embedder called %d times, want %d", emb.calls, tc.wantCalls)
			}
		})
	}
}

func TestAuthenticateUnauthorized(t *testing.T) {
	probe := createSolidImage(40, 40, color.RGBA{keyProbe, 0, 0, 255})

	tests := []struct {
		name         string
		gallery      []ImageSource
		wantCompared int
		wantSkipped  int
	}{
		{"empty gallery", nil, 0, 0},
		{"all entries undecodable", []ImageSource{broken("a.jpg"), broken("b.jpg")}, 0, 2},
		{"nothing above threshold", []ImageSource{solid("a.jpg", keyOrthogonal), solid("b.jpg", keyOpposite)}, 2, 0},
		{"only degenerate entry", []ImageSource{solid("zero.jpg", keyZero)}, 0, 1},
		{"empty decoded image", []ImageSource{memSource{name: "empty.jpg", img: image.NewRGBA(image.Rect(0, 0, 0, 0))}}, 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(t, newTestEmbedder())
			res, err := m.Authenticate(context.Background(), probe, tc.gallery)
			if err != nil {
				t.Fatalf("Authenticate failed: %v", err)
			}
			if res.Authorized || res.Score != 0 || res.Index != -1 || res.Entry != "" {
				t.Errorf("expected unauthorized zero result, got %+v", res)
			}
			if res.Compared != tc.wantCompared || res.Skipped != tc.wantSkipped {
				t.Errorf("compared/skipped = %d/%d, want %d/%d",
					res.Compared, res.Skipped, tc.wantCompared, tc.wantSkipped)
			}
		})
	}
}

func TestAuthenticateSkipsBrokenEntries(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := newTestMatcher(t, newTestEmbedder(), WithLogger(zap.New(core)))

	gallery := []ImageSource{
		broken("a_broken.jpg"),
		solid("b_zero.jpg", keyZero),
		solid("c_eighty.jpg", keyEighty),
	}

	res, err := m.Authenticate(context.Background(), createSolidImage(40, 40, color.RGBA{keyProbe, 0, 0, 255}), gallery)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !res.Authorized || res.Index != 2 {
		t.Errorf("expected match at index 2, got %+v", res)
	}
	if res.Skipped != 2 || res.Compared != 1 {
		t.Errorf("skipped/compared = %d/%d, want 2/1", res.Skipped, res.Compared)
	}
	if n := logs.FilterMessage("skipping gallery entry").Len(); n != 2 {
		t.Errorf("logged %d skipped entries, want 2", n)
	}
}

func TestAuthenticateProbeFailures(t *testing.T) {
	gallery := []ImageSource{solid("a.jpg", keyProbe)}

	tests := []struct {
		name    string
		probe   image.Image
		emb     *tableEmbedder
		wantErr error
	}{
		{"nil probe", nil, newTestEmbedder(), ErrDecodeFailure},
		{"degenerate probe", createSolidImage(10, 10, color.RGBA{keyZero, 0, 0, 255}), newTestEmbedder(), ErrDegenerateEmbedding},
		{"embedder failure", createSolidImage(10, 10, color.RGBA{keyProbe, 0, 0, 255}), &tableEmbedder{fail: ErrShapeMismatch}, ErrShapeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(t, tc.emb)
			res, err := m.Authenticate(context.Background(), tc.probe, gallery)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Authenticate error = %v, want %v", err, tc.wantErr)
			}
			if res != nil {
				t.Errorf("expected nil result on failure, got %+v", res)
			}
		})
	}
}

func TestAuthenticateGalleryEmbedderFailure(t *testing.T) {
	emb := newTestEmbedder()
	m := newTestMatcher(t, emb)

	// Key 99 has no table entry, so the embedder fails on the gallery image.
	gallery := []ImageSource{solid("unknown.jpg", 99)}
	_, err := m.Authenticate(context.Background(), createSolidImage(10, 10, color.RGBA{keyProbe, 0, 0, 255}), gallery)
	if err == nil {
		t.Fatal("expected embedder failure to abort the attempt")
	}
}

func TestAuthenticateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestMatcher(t, newTestEmbedder())
	_, err := m.Authenticate(ctx, createSolidImage(10, 10, color.RGBA{keyProbe, 0, 0, 255}), []ImageSource{solid("a.jpg", keyProbe)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Authenticate error = %v, want context.Canceled", err)
	}
}

func TestDecideThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		candidate Embedding
		want      bool
	}{
		{"score equal to threshold", 0, Embedding{0, 1}, false},
		{"score just above threshold", 0, Embedding{0.001, 1}, true},
		{"identical at default threshold", DefaultThreshold, Embedding{1, 0}, true},
		{"below default threshold", DefaultThreshold, Embedding{0.5, 0.8660254}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(t, newTestEmbedder(), WithThreshold(tc.threshold))
			res, err := m.Decide(Embedding{1, 0}, []Candidate{{Name: "x", Embedding: tc.candidate}})
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if res.Authorized != tc.want {
				t.Errorf("Authorized = %v, want %v (closest %v)", res.Authorized, tc.want, res.Closest)
			}
			if !res.Authorized && res.Score != 0 {
				t.Errorf("Score = %v for unauthorized result, want 0", res.Score)
			}
		})
	}
}

func TestDecideTiesKeepEarliest(t *testing.T) {
	m := newTestMatcher(t, newTestEmbedder())
	res, err := m.Decide(Embedding{1, 0}, []Candidate{
		{Name: "first", Embedding: Embedding{2, 0}},
		{Name: "second", Embedding: Embedding{5, 0}},
	})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if res.Entry != "first" {
		t.Errorf("Entry = %q, want %q", res.Entry, "first")
	}
}

func TestDecideDimensionMismatch(t *testing.T) {
	m := newTestMatcher(t, newTestEmbedder())
	_, err := m.Decide(Embedding{1, 0}, []Candidate{{Name: "x", Embedding: Embedding{1, 0, 0}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Decide error = %v, want ErrDimensionMismatch", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", BestMatch, false},
		{"best", BestMatch, false},
		{"FIRST", FirstMatch, false},
		{"random", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParsePolicy(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParsePolicy(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewMatcherDefaults(t *testing.T) {
	m := newTestMatcher(t, newTestEmbedder())
	if m.Threshold() != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", m.Threshold(), DefaultThreshold)
	}
	if m.Policy() != BestMatch {
		t.Errorf("Policy() = %q, want %q", m.Policy(), BestMatch)
	}
}
