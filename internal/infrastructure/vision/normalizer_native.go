//go:build !gocv
// +build !gocv

package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"mri-classifier/internal/domain/entity"
)

// Normalize выполняет предобработку на чистом Go (сборка без тега gocv).
func (n *Normalizer) Normalize(ctx context.Context, imageData []byte) (entity.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return entity.Tensor{}, err
	}

	if len(imageData) == 0 {
		return entity.Tensor{}, fmt.Errorf("%w: empty input", entity.ErrDecode)
	}
	if err := n.checkHeader(imageData); err != nil {
		return entity.Tensor{}, err
	}
	gray, err := decodeGray(imageData)
	if err != nil {
		return entity.Tensor{}, err
	}

	enhanced := equalizeAdaptive(gray, n.ClipLimit, n.TileGrid)

	// Обрезаем по самой крупной области ткани; если её нет — берём кадр целиком.
	roi := enhanced.Bounds()
	if rect, ok := largestRegion(binarize(enhanced, n.Threshold)); ok {
		roi = expandRect(rect, n.Margin, roi)
	}
	crop := image.NewGray(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	draw.Draw(crop, crop.Rect, enhanced, roi.Min, draw.Src)

	resized := toGray(resize.Resize(uint(n.Size), uint(n.Size), crop, resize.Bilinear))
	return n.packTensor(resized), nil
}

// decodeGray декодирует байты и приводит изображение к одному каналу яркости.
func decodeGray(imageData []byte) (*image.Gray, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty input", entity.ErrDecode)
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero area (%dx%d)", entity.ErrInvalidImage, img.Bounds().Dx(), img.Bounds().Dy())
	}
	return toGray(img), nil
}

// toGray копирует изображение в *image.Gray с началом координат в нуле.
// Цветные изображения переводятся по весам яркости 0.299/0.587/0.114.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}
