package entity

import (
	"time"
)

// PredictionResult итог классификации одного снимка.
type PredictionResult struct {
	Label         Label              // класс с максимальной вероятностью
	Confidence    float64            // вероятность класса в процентах, 2 знака после запятой
	HasTumor      bool               // Label != notumor
	Probabilities ClassProbabilities // полное распределение
	Message       string             // человекочитаемая строка для клиентов
}

// PredictionRecord запись истории предсказаний.
type PredictionRecord struct {
	ID            string
	Source        string // http, telegram, queue, cli
	ImageSHA256   string
	Label         Label
	Confidence    float64
	HasTumor      bool
	Probabilities ClassProbabilities
	CreatedAt     time.Time
}

// NewPredictionRecord собирает запись истории из результата.
func NewPredictionRecord(id, source, imageSHA string, res PredictionResult, at time.Time) PredictionRecord {
	return PredictionRecord{
		ID:            id,
		Source:        source,
		ImageSHA256:   imageSHA,
		Label:         res.Label,
		Confidence:    res.Confidence,
		HasTumor:      res.HasTumor,
		Probabilities: res.Probabilities,
		CreatedAt:     at,
	}
}
