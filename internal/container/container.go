package container

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mri-classifier/config"
	app "mri-classifier/internal/application"
	"mri-classifier/internal/domain/port"
	"mri-classifier/internal/infrastructure/cache"
	"mri-classifier/internal/infrastructure/nn"
	"mri-classifier/internal/infrastructure/onnx"
	"mri-classifier/internal/infrastructure/storage"
	"mri-classifier/internal/infrastructure/vision"
)

type Container struct {
	UserService       *app.UserService
	PredictionService *app.PredictionService

	// ModelErr причина, по которой модель не загружена. Сервис при этом
	// собран и отвечает ErrModelNotLoaded.
	ModelErr error

	closers []func() error
}

func New(cfg *config.Config, log *zap.Logger) (*Container, error) {
	c := &Container{}

	var history port.PredictionHistory
	if cfg.HistoryPath != "" {
		h, err := storage.OpenBoltHistory(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		history = h
		c.closers = append(c.closers, h.Close)
	}

	var results port.ResultCache
	if cfg.CacheSize > 0 {
		results = cache.New(cfg.CacheSize, cfg.CacheTTL)
	}

	var classifier port.Classifier
	if clf, err := c.loadClassifier(cfg); err != nil {
		c.ModelErr = err
		log.Error("model not loaded", zap.String("engine", cfg.Engine), zap.Error(err))
	} else {
		classifier = clf
		log.Info("model loaded", zap.String("engine", cfg.Engine))
	}

	c.UserService = app.NewUserService(storage.NewMemoryUserRepository())
	c.PredictionService = app.NewPredictionService(vision.NewNormalizer(), classifier, history, results, log)
	return c, nil
}

func (c *Container) loadClassifier(cfg *config.Config) (port.Classifier, error) {
	switch cfg.Engine {
	case config.EngineONNX:
		clf, err := onnx.New(onnx.Options{ModelPath: cfg.ONNXModelPath, LibraryPath: cfg.ONNXLibraryPath})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { clf.Close(); return nil })
		return clf, nil
	case config.EngineNative, "":
		m, err := nn.LoadModel(cfg.ModelPath, nn.BrainTumorCNN())
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// Close освобождает журнал и сессию модели.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}
