package vision

import (
	"image"
	"math"
)

// equalizeAdaptive контрастно-ограниченная адаптивная эквализация гистограммы
// (CLAHE) по сетке grid×grid. Повторяет схему OpenCV: изображение дополняется
// отражением до кратного сетке размера, гистограмма каждой плитки обрезается по
// clipLimit*площадь/256 с равномерным перераспределением излишка, итоговое
// значение пикселя — билинейная интерполяция LUT четырёх соседних плиток.
func equalizeAdaptive(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	tw := (w + grid - 1) / grid
	th := (h + grid - 1) / grid
	area := tw * th

	limit := 0
	if clipLimit > 0 {
		limit = int(clipLimit * float64(area) / 256)
		if limit < 1 {
			limit = 1
		}
	}
	lutScale := 255.0 / float64(area)

	at := func(x, y int) uint8 {
		return src.Pix[src.PixOffset(b.Min.X+reflect101(x, w), b.Min.Y+reflect101(y, h))]
	}

	luts := make([][256]uint8, grid*grid)
	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			var hist [256]int
			for y := ty * th; y < (ty+1)*th; y++ {
				for x := tx * tw; x < (tx+1)*tw; x++ {
					hist[at(x, y)]++
				}
			}
			if limit > 0 {
				clipHistogram(&hist, limit)
			}
			lut := &luts[ty*grid+tx]
			sum := 0
			for i := range hist {
				sum += hist[i]
				lut[i] = saturate(float64(sum) * lutScale)
			}
		}
	}

	invTW, invTH := 1/float64(tw), 1/float64(th)
	for y := 0; y < h; y++ {
		tyf := float64(y)*invTH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ya1 := 1 - ya
		ty1 = clampInt(ty1, 0, grid-1)
		ty2 = clampInt(ty2, 0, grid-1)

		for x := 0; x < w; x++ {
			txf := float64(x)*invTW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			xa1 := 1 - xa
			tx1 = clampInt(tx1, 0, grid-1)
			tx2 = clampInt(tx2, 0, grid-1)

			v := at(x, y)
			top := float64(luts[ty1*grid+tx1][v])*xa1 + float64(luts[ty1*grid+tx2][v])*xa
			bottom := float64(luts[ty2*grid+tx1][v])*xa1 + float64(luts[ty2*grid+tx2][v])*xa
			dst.Pix[y*dst.Stride+x] = saturate(top*ya1 + bottom*ya)
		}
	}
	return dst
}

func clipHistogram(hist *[256]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / 256
	residual := clipped - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := 256 / residual
		if step < 1 {
			step = 1
		}
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// reflect101 отражение индекса без повтора граничного пикселя (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func saturate(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
