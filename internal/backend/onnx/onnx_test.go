package onnx

import (
	"errors"
	"testing"

	"github.com/kozaktomas/face-gate/internal/faceauth"
	ort "github.com/yalue/onnxruntime_go"
)

func TestCheckInput(t *testing.T) {
	tests := []struct {
		name    string
		info    ort.InputOutputInfo
		wantErr bool
	}{
		{
			name: "exact shape",
			info: ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 112, 112, 3)},
		},
		{
			name: "dynamic batch",
			info: ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(-1, 112, 112, 3)},
		},
		{
			name:    "channels first",
			info:    ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 3, 112, 112)},
			wantErr: true,
		},
		{
			name:    "wrong size",
			info:    ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 160, 160, 3)},
			wantErr: true,
		},
		{
			name:    "wrong rank",
			info:    ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(112, 112, 3)},
			wantErr: true,
		},
		{
			name:    "uint8 input",
			info:    ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeUint8, Dimensions: ort.NewShape(1, 112, 112, 3)},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkInput(tc.info)
			if tc.wantErr {
				if !errors.Is(err, faceauth.ErrShapeMismatch) {
					t.Errorf("checkInput error = %v, want ErrShapeMismatch", err)
				}
				return
			}
			if err != nil {
				t.Errorf("checkInput error = %v, want nil", err)
			}
		})
	}
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		name     string
		dims     ort.Shape
		expected ort.Shape
		wantErr  bool
	}{
		{"fixed", ort.NewShape(1, 192), ort.NewShape(1, 192), false},
		{"dynamic batch", ort.NewShape(-1, 128), ort.NewShape(1, 128), false},
		{"dynamic feature", ort.NewShape(1, -1), nil, true},
		{"batch of two", ort.NewShape(2, 192), nil, true},
		{"scalar", ort.NewShape(), nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := ort.InputOutputInfo{Name: "embedding", DataType: ort.TensorElementDataTypeFloat, Dimensions: tc.dims}
			shape, err := resolveOutput(info)
			if (err != nil) != tc.wantErr {
				t.Fatalf("resolveOutput(%v) error = %v, wantErr %v", tc.dims, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if len(shape) != len(tc.expected) {
				t.Fatalf("resolveOutput(%v) = %v, want %v", tc.dims, shape, tc.expected)
			}
			for i := range shape {
				if shape[i] != tc.expected[i] {
					t.Errorf("resolveOutput(%v) = %v, want %v", tc.dims, shape, tc.expected)
				}
			}
		})
	}
}

func TestSelectInfo(t *testing.T) {
	infos := []ort.InputOutputInfo{{Name: "data"}, {Name: "mask"}}

	tests := []struct {
		name     string
		infos    []ort.InputOutputInfo
		want     string
		expected string
		wantErr  bool
	}{
		{"first by default", infos, "", "data", false},
		{"by name", infos, "mask", "mask", false},
		{"unknown name", infos, "pixels", "", true},
		{"no tensors", nil, "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := selectInfo(tc.infos, tc.want, "input")
			if (err != nil) != tc.wantErr {
				t.Fatalf("selectInfo error = %v, wantErr %v", err, tc.wantErr)
			}
			if info.Name != tc.expected {
				t.Errorf("selectInfo = %q, want %q", info.Name, tc.expected)
			}
		})
	}
}

func TestInputShape(t *testing.T) {
	shape := inputShape()
	if shape.FlattenedSize() != 112*112*3 {
		t.Errorf("input shape %v has %d elements, want %d", shape, shape.FlattenedSize(), 112*112*3)
	}
}

func TestNewRequiresModelPath(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error for empty model path")
	}
}
