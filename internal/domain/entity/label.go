package entity

import (
	"fmt"
	"math"
)

// Label класс опухоли, который умеет различать сеть
type Label string

const (
	LabelGlioma     Label = "glioma"
	LabelMeningioma Label = "meningioma"
	LabelPituitary  Label = "pituitary"
	LabelNoTumor    Label = "notumor"
)

// NumClasses количество выходов классификатора
const NumClasses = 4

// Labels фиксированный порядок классов: индексы выходов сети и порядок разрешения ничьих.
var Labels = [NumClasses]Label{LabelGlioma, LabelMeningioma, LabelPituitary, LabelNoTumor}

// ParseLabel возвращает метку по строковому имени.
func ParseLabel(s string) (Label, error) {
	for _, l := range Labels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// ClassProbabilities распределение вероятностей по классам в порядке Labels.
type ClassProbabilities [NumClasses]float64

// Of возвращает вероятность класса.
func (p ClassProbabilities) Of(label Label) float64 {
	for i, l := range Labels {
		if l == label {
			return p[i]
		}
	}
	return 0
}

// Sum сумма всех вероятностей (≈1 для корректного распределения).
func (p ClassProbabilities) Sum() float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

// Map представление для JSON-ответов.
func (p ClassProbabilities) Map() map[string]float64 {
	m := make(map[string]float64, NumClasses)
	for i, l := range Labels {
		m[string(l)] = p[i]
	}
	return m
}

// Valid проверяет, что значения лежат в [0,1] и в сумме дают 1 с точностью tol.
func (p ClassProbabilities) Valid(tol float64) bool {
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return math.Abs(p.Sum()-1) <= tol
}
