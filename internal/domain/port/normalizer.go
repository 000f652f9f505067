package port

import (
	"context"

	"mri-classifier/internal/domain/entity"
)

// ImageNormalizer превращает байты снимка во входной тензор сети
type ImageNormalizer interface {
	// Normalize декодирует, обрезает по области интереса и нормализует изображение
	Normalize(ctx context.Context, imageData []byte) (entity.Tensor, error)
}
