//go:build gocv
// +build gocv

package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"mri-classifier/internal/domain/entity"
)

func TestDecodeGrayMat_ErrorReturnsZeroMat(t *testing.T) {
	for name, data := range map[string][]byte{
		"text":      []byte("definitely not an image"),
		"truncated": encodePNG(t, syntheticScan(64, 64))[:40],
	} {
		t.Run(name, func(t *testing.T) {
			mat, err := decodeGrayMat(data)
			require.ErrorIs(t, err, entity.ErrDecode)
			require.Equal(t, gocv.Mat{}, mat)
		})
	}
}

func TestDecodeGrayMat_Gray(t *testing.T) {
	mat, err := decodeGrayMat(encodePNG(t, syntheticScan(40, 30)))
	require.NoError(t, err)
	defer mat.Close()
	require.Equal(t, 40, mat.Cols())
	require.Equal(t, 30, mat.Rows())
	require.Equal(t, 1, mat.Channels())
}
