package entity

import "fmt"

// Tensor плотный массив float32 в порядке row-major (для изображений NCHW).
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor создаёт тензор заданной формы, заполненный нулями.
func NewTensor(shape ...int) Tensor {
	s := append([]int(nil), shape...)
	return Tensor{Shape: s, Data: make([]float32, NumElements(s))}
}

// NumElements произведение размерностей.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// SameShape сравнивает формы поэлементно.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Validate проверяет, что длина данных соответствует форме.
func (t Tensor) Validate() error {
	if n := NumElements(t.Shape); n != len(t.Data) {
		return fmt.Errorf("tensor shape %v wants %d values, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}
