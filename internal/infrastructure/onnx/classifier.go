// Package onnx классификатор на ONNX Runtime. Сборка с тегом onnxruntime;
// без него New возвращает ErrUnavailable.
package onnx

import (
	"errors"

	"mri-classifier/internal/domain/entity"
)

// Имена входа и выхода графа при экспорте сети.
const (
	InputName  = "input"
	OutputName = "output"
)

var ErrUnavailable = errors.New("onnx engine is not compiled in (build with -tags onnxruntime)")

// Options параметры сессии.
type Options struct {
	ModelPath   string
	LibraryPath string // путь к libonnxruntime; пусто — системный поиск
}

var inputShape = []int64{1, 3, 224, 224}

func outputShape() []int64 {
	return []int64{1, entity.NumClasses}
}
