// Package nntest строит модели со случайными детерминированными весами для тестов.
package nntest

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/infrastructure/nn"
)

// RandomWeights параметры архитектуры: свёртки и линейные слои по He,
// статистики BN около единицы, смещения малые.
func RandomWeights(arch nn.Architecture, seed int64) map[string]entity.Tensor {
	rng := rand.New(rand.NewSource(seed))
	params := make(map[string]entity.Tensor)
	for _, p := range arch.Params() {
		t := entity.NewTensor(p.Shape...)
		switch {
		case strings.HasSuffix(p.Name, ".running_var"):
			for i := range t.Data {
				t.Data[i] = float32(1 + 0.1*math.Abs(rng.NormFloat64()))
			}
		case len(p.Shape) > 1:
			fanIn := entity.NumElements(p.Shape[1:])
			std := math.Sqrt(2 / float64(fanIn))
			for i := range t.Data {
				t.Data[i] = float32(rng.NormFloat64() * std)
			}
		case strings.HasSuffix(p.Name, ".weight"):
			for i := range t.Data {
				t.Data[i] = float32(1 + 0.1*rng.NormFloat64())
			}
		default:
			for i := range t.Data {
				t.Data[i] = float32(0.05 * rng.NormFloat64())
			}
		}
		params[p.Name] = t
	}
	return params
}

// RandomModel модель со случайными весами.
func RandomModel(t testing.TB, arch nn.Architecture, seed int64) *nn.Model {
	t.Helper()
	m, err := nn.NewModel(arch, RandomWeights(arch, seed))
	require.NoError(t, err)
	return m
}

// SmallModel рабочая топология с сильно урезанной шириной каналов.
func SmallModel(t testing.TB, seed int64) *nn.Model {
	return RandomModel(t, nn.ScaledBrainTumorCNN(32), seed)
}
