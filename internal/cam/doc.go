// Package cam renders class activation maps for a convolutional classifier
// whose last stage is global average pooling followed by a linear layer.
//
// Per sample the pipeline is: capture the hooked feature map during a
// forward pass, weight its channels by one row of the linear layer, min-max
// normalize to 8 bits, colorize with a jet map, blend over the source image
// and write one JPEG per (sample, epoch). Assemble later turns the frames of
// one sample into an animated GIF.
//
// Everything here assumes single-threaded inference: a FeatureCapture holds
// exactly one feature map and is overwritten by every forward pass.
package cam

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch reports a weight matrix or feature map with
	// unexpected dimensions.
	ErrShapeMismatch = errors.New("cam: shape mismatch")
	// ErrMissingFrame reports a per-epoch frame that Assemble could not find.
	ErrMissingFrame = errors.New("cam: missing frame")
)
