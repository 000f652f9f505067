//go:build !onnxruntime

package onnx

import (
	"context"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
)

// Classifier заглушка для сборки без ONNX Runtime.
type Classifier struct{}

func New(opts Options) (*Classifier, error) {
	return nil, ErrUnavailable
}

func (c *Classifier) InputShape() []int {
	out := make([]int, len(inputShape))
	for i, d := range inputShape {
		out[i] = int(d)
	}
	return out
}

func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error) {
	return entity.ClassProbabilities{}, ErrUnavailable
}

func (c *Classifier) Close() {}

var _ port.Classifier = (*Classifier)(nil)
