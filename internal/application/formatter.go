package app

import (
	"fmt"
	"strconv"

	"mri-classifier/internal/domain/entity"
)

// FormatResult выбирает класс с максимальной вероятностью (при равенстве —
// первый в порядке entity.Labels) и переводит уверенность в проценты.
func FormatResult(p entity.ClassProbabilities) entity.PredictionResult {
	best := 0
	for i := 1; i < entity.NumClasses; i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	label := entity.Labels[best]

	// Confidence и Message строятся из одной строки с двумя знаками.
	percent := strconv.FormatFloat(p[best]*100, 'f', 2, 64)
	confidence, _ := strconv.ParseFloat(percent, 64)

	return entity.PredictionResult{
		Label:         label,
		Confidence:    confidence,
		HasTumor:      label != entity.LabelNoTumor,
		Probabilities: p,
		Message:       fmt.Sprintf("Predicted: %s (%s%% confidence)", label, percent),
	}
}
