package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mri-classifier/internal/domain/entity"
)

func openHistory(t *testing.T) (*BoltHistory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenBoltHistory(path)
	require.NoError(t, err)
	return h, path
}

func TestBoltHistory_RecentNewestFirst(t *testing.T) {
	h, _ := openHistory(t)
	defer h.Close()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		res := entity.PredictionResult{
			Label:         entity.LabelMeningioma,
			Confidence:    float64(50 + i),
			HasTumor:      true,
			Probabilities: entity.ClassProbabilities{0.1, 0.7, 0.1, 0.1},
		}
		rec := entity.NewPredictionRecord(fmt.Sprintf("id-%d", i), "http", "abc", res, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, h.Record(ctx, rec))
	}

	recs, err := h.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "id-4", recs[0].ID)
	require.Equal(t, "id-3", recs[1].ID)
	require.Equal(t, "id-2", recs[2].ID)
	require.Equal(t, entity.ClassProbabilities{0.1, 0.7, 0.1, 0.1}, recs[0].Probabilities)
	require.True(t, recs[0].CreatedAt.Equal(base.Add(4*time.Minute)))

	all, err := h.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestBoltHistory_Empty(t *testing.T) {
	h, _ := openHistory(t)
	defer h.Close()

	recs, err := h.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestBoltHistory_Reopen(t *testing.T) {
	h, path := openHistory(t)
	rec := entity.NewPredictionRecord("x", "cli", "sha", entity.PredictionResult{Label: entity.LabelNoTumor}, time.Now().UTC())
	require.NoError(t, h.Record(context.Background(), rec))
	require.NoError(t, h.Close())

	h, err := OpenBoltHistory(path)
	require.NoError(t, err)
	defer h.Close()

	recs, err := h.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, entity.LabelNoTumor, recs[0].Label)
}
