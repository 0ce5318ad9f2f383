package model

import "fmt"

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NumElements returns the element count implied by shape.
func NumElements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// EmbeddingRequest is the JSON body of POST /generate-embedding.
// Image is nil when the "image" key is absent or null.
type EmbeddingRequest struct {
	Image *string `json:"image"`
}

// EmbeddingResponse is returned on success.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InferenceError reports a tensor the model cannot accept or a failed forward pass.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
