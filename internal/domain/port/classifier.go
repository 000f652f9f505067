package port

import (
	"context"

	"mri-classifier/internal/domain/entity"
)

// Classifier интерфейс движка инференса
type Classifier interface {
	// Infer прогоняет тензор через сеть и возвращает распределение по классам
	Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error)

	// InputShape ожидаемая форма входного тензора
	InputShape() []int
}
