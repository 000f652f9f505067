package port

import (
	"context"

	"mri-classifier/internal/domain/entity"
)

// PredictionHistory журнал выполненных предсказаний
type PredictionHistory interface {
	// Record сохраняет запись
	Record(ctx context.Context, rec entity.PredictionRecord) error

	// Recent возвращает последние записи, новые первыми
	Recent(ctx context.Context, limit int) ([]entity.PredictionRecord, error)
}
