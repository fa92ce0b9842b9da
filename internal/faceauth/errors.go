package faceauth

import "errors"

var (
	// ErrDecodeFailure is returned when an image is missing, unreadable or empty.
	// Gallery entries failing with it are skipped; a failing probe aborts the attempt.
	ErrDecodeFailure = errors.New("image could not be decoded")

	// ErrShapeMismatch is returned when a tensor does not match the model input contract.
	ErrShapeMismatch = errors.New("tensor shape does not match model input")

	// ErrDegenerateEmbedding is returned for embeddings with zero or non-finite norm.
	ErrDegenerateEmbedding = errors.New("embedding has zero or non-finite norm")

	// ErrDimensionMismatch is returned when two embeddings have different lengths.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)
