package nn

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// activation промежуточный результат прямого прохода (батч 1, CHW).
type activation struct {
	c, h, w int
	data    []float32
}

// conv2d свёртка с шагом 1 через im2col и одну матричную операцию:
// out[Cout, H'W'] = W[Cout, Cin*k*k] · cols[Cin*k*k, H'W'] + bias.
func conv2d(x activation, weights blas32.General, bias []float32, k, pad int) activation {
	outH := x.h + 2*pad - k + 1
	outW := x.w + 2*pad - k + 1
	spatial := outH * outW

	cols := make([]float32, x.c*k*k*spatial)
	for c := 0; c < x.c; c++ {
		plane := x.data[c*x.h*x.w : (c+1)*x.h*x.w]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := cols[((c*k+ky)*k+kx)*spatial:]
				for oy := 0; oy < outH; oy++ {
					iy := oy + ky - pad
					if iy < 0 || iy >= x.h {
						continue
					}
					src := plane[iy*x.w : (iy+1)*x.w]
					dst := row[oy*outW : (oy+1)*outW]
					for ox := range dst {
						ix := ox + kx - pad
						if ix >= 0 && ix < x.w {
							dst[ox] = src[ix]
						}
					}
				}
			}
		}
	}

	out := make([]float32, weights.Rows*spatial)
	for o := 0; o < weights.Rows; o++ {
		b := bias[o]
		row := out[o*spatial : (o+1)*spatial]
		for i := range row {
			row[i] = b
		}
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, weights,
		blas32.General{Rows: x.c * k * k, Cols: spatial, Stride: spatial, Data: cols},
		1, blas32.General{Rows: weights.Rows, Cols: spatial, Stride: spatial, Data: out})

	return activation{c: weights.Rows, h: outH, w: outW, data: out}
}

// batchNorm применяет свёрнутую нормализацию y = x*scale + shift по каналам, на месте.
func batchNorm(x activation, scale, shift []float32) activation {
	plane := x.h * x.w
	for c := 0; c < x.c; c++ {
		s, t := scale[c], shift[c]
		row := x.data[c*plane : (c+1)*plane]
		for i, v := range row {
			row[i] = v*s + t
		}
	}
	return x
}

func relu(x activation) activation {
	for i, v := range x.data {
		if v < 0 {
			x.data[i] = 0
		}
	}
	return x
}

// maxPool окно k×k с шагом k, остаток по краям отбрасывается.
func maxPool(x activation, k int) activation {
	outH, outW := x.h/k, x.w/k
	out := make([]float32, x.c*outH*outW)
	for c := 0; c < x.c; c++ {
		plane := x.data[c*x.h*x.w:]
		dst := out[c*outH*outW:]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				m := float32(math.Inf(-1))
				for dy := 0; dy < k; dy++ {
					row := plane[(oy*k+dy)*x.w+ox*k:]
					for dx := 0; dx < k; dx++ {
						if row[dx] > m {
							m = row[dx]
						}
					}
				}
				dst[oy*outW+ox] = m
			}
		}
	}
	return activation{c: x.c, h: outH, w: outW, data: out}
}

func globalAvgPool(x activation) activation {
	plane := x.h * x.w
	out := make([]float32, x.c)
	for c := range out {
		var s float64
		for _, v := range x.data[c*plane : (c+1)*plane] {
			s += float64(v)
		}
		out[c] = float32(s / float64(plane))
	}
	return activation{c: x.c, h: 1, w: 1, data: out}
}

func flatten(x activation) activation {
	return activation{c: x.c * x.h * x.w, h: 1, w: 1, data: x.data}
}

// linear y = W·x + b.
func linear(x activation, weights blas32.General, bias []float32) activation {
	out := make([]float32, weights.Rows)
	copy(out, bias)
	blas32.Gemv(blas.NoTrans, 1, weights,
		blas32.Vector{N: x.c, Inc: 1, Data: x.data},
		1, blas32.Vector{N: weights.Rows, Inc: 1, Data: out})
	return activation{c: weights.Rows, h: 1, w: 1, data: out}
}

// softmax в float64 с вычитанием максимума.
func softmax(logits []float32) []float64 {
	m := math.Inf(-1)
	for _, v := range logits {
		m = math.Max(m, float64(v))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
