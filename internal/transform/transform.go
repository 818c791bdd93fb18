// Package transform is the boundary to the external image-variant service.
// The orchestrator treats it as a black box producing named byte buffers;
// transform failures are not retried here.
package transform

import "context"

// Variant is one derived byte buffer with its dimensions.
type Variant struct {
	Bytes    []byte
	MimeType string
	Width    int
	Height   int
}

// VariantSet is the result of one image transform.
type VariantSet struct {
	Original Variant
	Display  Variant
	Thumb    Variant
}

// Transformer derives display/thumbnail variants from one source image.
type Transformer interface {
	Transform(ctx context.Context, imageBytes []byte, mimeType string) (*VariantSet, error)
}
