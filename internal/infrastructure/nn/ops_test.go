package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/blas/blas32"
)

// naiveConv прямое определение свёртки для сверки с im2col.
func naiveConv(x activation, w []float32, bias []float32, out, k, pad int) activation {
	oh, ow := x.h+2*pad-k+1, x.w+2*pad-k+1
	res := make([]float32, out*oh*ow)
	for o := 0; o < out; o++ {
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				s := float64(bias[o])
				for c := 0; c < x.c; c++ {
					for ky := 0; ky < k; ky++ {
						for kx := 0; kx < k; kx++ {
							iy, ix := y+ky-pad, xx+kx-pad
							if iy < 0 || ix < 0 || iy >= x.h || ix >= x.w {
								continue
							}
							s += float64(w[((o*x.c+c)*k+ky)*k+kx]) * float64(x.data[(c*x.h+iy)*x.w+ix])
						}
					}
				}
				res[(o*oh+y)*ow+xx] = float32(s)
			}
		}
	}
	return activation{c: out, h: oh, w: ow, data: res}
}

func randomSlice(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func TestConv2D_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := activation{c: 3, h: 7, w: 5, data: randomSlice(rng, 3*7*5)}
	const out, k = 4, 3
	w := randomSlice(rng, out*3*k*k)
	bias := randomSlice(rng, out)

	got := conv2d(x, blas32.General{Rows: out, Cols: 3 * k * k, Stride: 3 * k * k, Data: w}, bias, k, 1)
	want := naiveConv(x, w, bias, out, k, 1)

	require.Equal(t, [3]int{want.c, want.h, want.w}, [3]int{got.c, got.h, got.w})
	for i := range want.data {
		require.InDelta(t, want.data[i], got.data[i], 1e-4)
	}
}

func TestBatchNormReLU(t *testing.T) {
	x := activation{c: 2, h: 1, w: 2, data: []float32{1, -1, 2, 4}}
	x = batchNorm(x, []float32{2, 0.5}, []float32{0, -1})
	require.Equal(t, []float32{2, -2, 0, 1}, x.data)
	require.Equal(t, []float32{2, 0, 0, 1}, relu(x).data)
}

func TestMaxPool_DropsRemainder(t *testing.T) {
	x := activation{c: 1, h: 3, w: 5, data: []float32{
		1, 2, 3, 4, 9,
		5, 6, 7, 8, 9,
		9, 9, 9, 9, 9,
	}}
	got := maxPool(x, 2)
	require.Equal(t, 1, got.h)
	require.Equal(t, 2, got.w)
	require.Equal(t, []float32{6, 8}, got.data)
}

func TestGlobalAvgPoolFlattenLinear(t *testing.T) {
	x := activation{c: 2, h: 2, w: 2, data: []float32{1, 2, 3, 4, 10, 10, 10, 10}}
	x = flatten(globalAvgPool(x))
	require.Equal(t, []float32{2.5, 10}, x.data)

	w := blas32.General{Rows: 3, Cols: 2, Stride: 2, Data: []float32{1, 0, 0, 1, 1, 1}}
	y := linear(x, w, []float32{0, 1, -2.5})
	require.Equal(t, []float32{2.5, 11, 10}, y.data)
}

func TestSoftmax(t *testing.T) {
	p := softmax([]float32{1000, 1000, 1000, 1000})
	for _, v := range p {
		require.InDelta(t, 0.25, v, 1e-12)
	}

	p = softmax([]float32{0, math.Float32frombits(0x3f800000), -3, 2})
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	require.InDelta(t, 1, sum, 1e-12)
	require.Greater(t, p[3], p[1])
	require.Greater(t, p[1], p[0])
	require.Greater(t, p[0], p[2])
}
