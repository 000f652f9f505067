//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"mri-classifier/internal/domain/entity"
)

// Normalize выполняет предобработку через OpenCV.
func (n *Normalizer) Normalize(ctx context.Context, imageData []byte) (entity.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return entity.Tensor{}, err
	}

	if len(imageData) == 0 {
		return entity.Tensor{}, fmt.Errorf("%w: empty input", entity.ErrDecode)
	}
	// Форматы, которых нет среди кодеков Go, OpenCV может прочитать сам,
	// поэтому останавливаемся только на превышении размера.
	if err := n.checkHeader(imageData); errors.Is(err, entity.ErrInvalidImage) {
		return entity.Tensor{}, err
	}
	gray, err := decodeGrayMat(imageData)
	if err != nil {
		return entity.Tensor{}, err
	}
	defer gray.Close()

	if gray.Cols() == 0 || gray.Rows() == 0 {
		return entity.Tensor{}, fmt.Errorf("%w: zero area", entity.ErrInvalidImage)
	}

	clahe := gocv.NewCLAHEWithParams(n.ClipLimit, image.Pt(n.TileGrid, n.TileGrid))
	defer clahe.Close()

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(gray, &enhanced)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(enhanced, &thresh, float32(n.Threshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	// Обрезаем по контуру с максимальной площадью; если контуров нет — кадр целиком.
	roi := image.Rect(0, 0, enhanced.Cols(), enhanced.Rows())
	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	if best >= 0 {
		roi = expandRect(gocv.BoundingRect(contours.At(best)), n.Margin, roi)
	}

	crop := enhanced.Region(roi)
	defer crop.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(crop, &resized, image.Pt(n.Size, n.Size), 0, 0, gocv.InterpolationLinear)

	out := &image.Gray{
		Pix:    resized.ToBytes(),
		Stride: n.Size,
		Rect:   image.Rect(0, 0, n.Size, n.Size),
	}
	return n.packTensor(out), nil
}

// decodeGrayMat декодирует сразу в оттенки серого, при неудаче — в цвет с
// последующим переводом в серый. При ошибке возвращает пустой Mat, который
// закрывать не нужно.
func decodeGrayMat(imageData []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadGrayScale)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	color, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || color.Empty() {
		color.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %d bytes", entity.ErrDecode, len(imageData))
	}
	defer color.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
