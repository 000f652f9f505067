package port

import "mri-classifier/internal/domain/entity"

// ResultCache кеш результатов по хешу содержимого снимка
type ResultCache interface {
	Get(key string) (entity.PredictionResult, bool)
	Add(key string, result entity.PredictionResult)
}
