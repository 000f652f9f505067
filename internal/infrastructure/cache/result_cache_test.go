package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mri-classifier/internal/domain/entity"
)

func TestResultCache_GetAdd(t *testing.T) {
	c := New(2, time.Minute)

	_, ok := c.Get("a")
	require.False(t, ok)

	res := entity.PredictionResult{Label: entity.LabelPituitary, Confidence: 91.5, HasTumor: true}
	c.Add("a", res)

	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, res, got)
}

func TestResultCache_EvictsLeastRecent(t *testing.T) {
	c := New(2, time.Minute)
	c.Add("a", entity.PredictionResult{Label: entity.LabelGlioma})
	c.Add("b", entity.PredictionResult{Label: entity.LabelMeningioma})
	_, _ = c.Get("a")
	c.Add("c", entity.PredictionResult{Label: entity.LabelNoTumor})

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
}

func TestResultCache_Expires(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Add("a", entity.PredictionResult{Label: entity.LabelGlioma})

	require.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
