package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
)

// Источники запросов для истории.
const (
	SourceHTTP     = "http"
	SourceTelegram = "telegram"
	SourceQueue    = "queue"
	SourceCLI      = "cli"
)

// PredictionService конвейер снимок → тензор → вероятности → результат.
type PredictionService struct {
	normalizer port.ImageNormalizer
	classifier port.Classifier
	history    port.PredictionHistory
	cache      port.ResultCache
	log        *zap.Logger
	now        func() time.Time
}

// NewPredictionService создаёт сервис. history и cache необязательны.
func NewPredictionService(normalizer port.ImageNormalizer, classifier port.Classifier, history port.PredictionHistory, cache port.ResultCache, log *zap.Logger) *PredictionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PredictionService{
		normalizer: normalizer,
		classifier: classifier,
		history:    history,
		cache:      cache,
		log:        log,
		now:        time.Now,
	}
}

// Ready true, если модель загружена и сервис может отвечать.
func (s *PredictionService) Ready() bool {
	return s.classifier != nil && s.normalizer != nil
}

// Predict классифицирует снимок. Ошибки ядра возвращаются обёрнутыми, без повторов.
func (s *PredictionService) Predict(ctx context.Context, source string, image []byte) (*entity.PredictionResult, error) {
	if !s.Ready() {
		return nil, entity.ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.log.Debug("prediction cache hit", zap.String("sha256", key))
			s.record(ctx, source, key, res)
			return &res, nil
		}
	}

	start := s.now()
	tensor, err := s.normalizer.Normalize(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w", err)
	}

	probs, err := s.classifier.Infer(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	res := FormatResult(probs)
	s.log.Info("prediction",
		zap.String("source", source),
		zap.String("sha256", key),
		zap.String("label", string(res.Label)),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("took", s.now().Sub(start)),
	)

	if s.cache != nil {
		s.cache.Add(key, res)
	}
	s.record(ctx, source, key, res)
	return &res, nil
}

// record пишет историю; сбой журнала не влияет на ответ.
func (s *PredictionService) record(ctx context.Context, source, key string, res entity.PredictionResult) {
	if s.history == nil {
		return
	}
	rec := entity.NewPredictionRecord(uuid.NewString(), source, key, res, s.now().UTC())
	if err := s.history.Record(ctx, rec); err != nil {
		s.log.Warn("failed to record prediction", zap.Error(err))
	}
}

// History последние предсказания; без журнала — пустой список.
func (s *PredictionService) History(ctx context.Context, limit int) ([]entity.PredictionRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}
