package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/infrastructure/cache"
	"mri-classifier/internal/infrastructure/nn/nntest"
	"mri-classifier/internal/infrastructure/storage"
	"mri-classifier/internal/infrastructure/vision"
)

type fakeNormalizer struct {
	calls int
	err   error
}

func (f *fakeNormalizer) Normalize(ctx context.Context, data []byte) (entity.Tensor, error) {
	f.calls++
	if f.err != nil {
		return entity.Tensor{}, f.err
	}
	return entity.NewTensor(1, 3, 224, 224), nil
}

type fakeClassifier struct {
	probs entity.ClassProbabilities
	err   error
	calls int
}

func (f *fakeClassifier) Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error) {
	f.calls++
	return f.probs, f.err
}

func (f *fakeClassifier) InputShape() []int { return []int{1, 3, 224, 224} }

type memoryHistory struct {
	mu   sync.Mutex
	recs []entity.PredictionRecord
	err  error
}

func (h *memoryHistory) Record(ctx context.Context, rec entity.PredictionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.recs = append(h.recs, rec)
	return nil
}

func (h *memoryHistory) Recent(ctx context.Context, limit int) ([]entity.PredictionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recs, nil
}

func TestPredictionService_Predict(t *testing.T) {
	norm := &fakeNormalizer{}
	clf := &fakeClassifier{probs: entity.ClassProbabilities{0.7, 0.1, 0.1, 0.1}}
	hist := &memoryHistory{}
	svc := NewPredictionService(norm, clf, hist, nil, nil)

	res, err := svc.Predict(context.Background(), SourceHTTP, []byte("scan"))
	require.NoError(t, err)
	require.Equal(t, entity.LabelGlioma, res.Label)
	require.Equal(t, 70.0, res.Confidence)
	require.True(t, res.HasTumor)

	require.Len(t, hist.recs, 1)
	rec := hist.recs[0]
	require.Equal(t, SourceHTTP, rec.Source)
	require.Equal(t, entity.LabelGlioma, rec.Label)
	require.Len(t, rec.ImageSHA256, 64)
	require.NotEmpty(t, rec.ID)
}

func TestPredictionService_NotReady(t *testing.T) {
	svc := NewPredictionService(&fakeNormalizer{}, nil, nil, nil, nil)
	require.False(t, svc.Ready())

	_, err := svc.Predict(context.Background(), SourceHTTP, []byte("scan"))
	require.ErrorIs(t, err, entity.ErrModelNotLoaded)
}

func TestPredictionService_PropagatesErrors(t *testing.T) {
	svc := NewPredictionService(&fakeNormalizer{err: entity.ErrDecode}, &fakeClassifier{}, nil, nil, nil)
	_, err := svc.Predict(context.Background(), SourceHTTP, nil)
	require.ErrorIs(t, err, entity.ErrDecode)

	clf := &fakeClassifier{err: entity.ErrShapeMismatch}
	hist := &memoryHistory{}
	svc = NewPredictionService(&fakeNormalizer{}, clf, hist, nil, nil)
	_, err = svc.Predict(context.Background(), SourceHTTP, []byte("x"))
	require.ErrorIs(t, err, entity.ErrShapeMismatch)
	require.Equal(t, 1, clf.calls)
	require.Empty(t, hist.recs)
}

func TestPredictionService_HistoryFailureDoesNotFailPrediction(t *testing.T) {
	hist := &memoryHistory{err: errors.New("disk full")}
	svc := NewPredictionService(&fakeNormalizer{}, &fakeClassifier{probs: entity.ClassProbabilities{0, 0, 0, 1}}, hist, nil, nil)

	res, err := svc.Predict(context.Background(), SourceQueue, []byte("x"))
	require.NoError(t, err)
	require.False(t, res.HasTumor)
}

func TestPredictionService_CacheSkipsInference(t *testing.T) {
	norm := &fakeNormalizer{}
	clf := &fakeClassifier{probs: entity.ClassProbabilities{0.1, 0.1, 0.7, 0.1}}
	hist := &memoryHistory{}
	svc := NewPredictionService(norm, clf, hist, cache.New(8, time.Minute), nil)

	first, err := svc.Predict(context.Background(), SourceHTTP, []byte("same bytes"))
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), SourceTelegram, []byte("same bytes"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, norm.calls)
	require.Equal(t, 1, clf.calls)
	require.Len(t, hist.recs, 2)

	_, err = svc.Predict(context.Background(), SourceHTTP, []byte("other bytes"))
	require.NoError(t, err)
	require.Equal(t, 2, clf.calls)
}

func TestPredictionService_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	norm := &fakeNormalizer{}
	svc := NewPredictionService(norm, &fakeClassifier{}, nil, nil, nil)

	_, err := svc.Predict(ctx, SourceHTTP, []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, norm.calls)
}

func TestPredictionService_EndToEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 256, 256))))

	hist, err := storage.OpenBoltHistory(t.TempDir() + "/history.db")
	require.NoError(t, err)
	defer hist.Close()

	svc := NewPredictionService(vision.NewNormalizer(), nntest.SmallModel(t, 5), hist, nil, nil)
	res, err := svc.Predict(context.Background(), SourceCLI, buf.Bytes())
	require.NoError(t, err)
	require.InDelta(t, 1.0, res.Probabilities.Sum(), 1e-4)
	require.Equal(t, res.HasTumor, res.Label != entity.LabelNoTumor)

	recs, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, res.Label, recs[0].Label)
}
