package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mri-classifier/internal/domain/entity"
)

// Параметры предобработки, на которых обучалась сеть.
const (
	InputSize    = 224
	Channels     = 3
	ClipLimit    = 2.0
	TileGrid     = 8
	ForegroundAt = 30
	CropMargin   = 20

	// MaxPixels предел площади входного снимка, проверяется по заголовку
	// до декодирования растра.
	MaxPixels = 1 << 25
)

// Normalizer готовит снимок МРТ ко входу сети: CLAHE, обрезка по
// самому крупному контуру, ресайз, три канала, нормализация в [-1,1].
type Normalizer struct {
	Size      int
	ClipLimit float64
	TileGrid  int
	Threshold uint8
	Margin    int
	MaxPixels int // 0 — без ограничения
}

// NewNormalizer создаёт нормализатор с параметрами обучения.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Size:      InputSize,
		ClipLimit: ClipLimit,
		TileGrid:  TileGrid,
		Threshold: ForegroundAt,
		Margin:    CropMargin,
		MaxPixels: MaxPixels,
	}
}

// OutputShape форма тензора, который возвращает Normalize.
func (n *Normalizer) OutputShape() []int {
	return []int{1, Channels, n.Size, n.Size}
}

// checkHeader читает только заголовок изображения и отклоняет снимки
// нулевой площади или площадью больше n.MaxPixels.
func (n *Normalizer) checkHeader(imageData []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: zero area (%dx%d)", entity.ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if n.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(n.MaxPixels) {
		return fmt.Errorf("%w: %s %dx%d exceeds %d pixels", entity.ErrInvalidImage, format, cfg.Width, cfg.Height, n.MaxPixels)
	}
	return nil
}

// expandRect расширяет прямоугольник на margin с каждой стороны в пределах bounds.
func expandRect(r image.Rectangle, margin int, bounds image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X-margin, r.Min.Y-margin, r.Max.X+margin, r.Max.Y+margin).Intersect(bounds)
}

// packTensor копирует квадратный серый растр в три канала и переводит
// значения из [0,255] в [-1,1]: x/255, затем (x-0.5)/0.5.
func (n *Normalizer) packTensor(gray *image.Gray) entity.Tensor {
	size := n.Size
	t := entity.NewTensor(n.OutputShape()...)
	plane := size * size
	for y := 0; y < size; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+size]
		for x, v := range row {
			f := (float32(v)/255 - 0.5) / 0.5
			i := y*size + x
			t.Data[i] = f
			t.Data[plane+i] = f
			t.Data[2*plane+i] = f
		}
	}
	return t
}
