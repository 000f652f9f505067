package nn

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"

	"mri-classifier/internal/domain/entity"
)

// Model сеть с загруженными весами. После создания не изменяется, поэтому
// один экземпляр безопасно использовать из любого числа горутин.
type Model struct {
	arch   Architecture
	params map[string]entity.Tensor
	steps  []step
}

// step подготовленный к исполнению слой.
type step struct {
	layer   Layer
	weights blas32.General
	bias    []float32
	scale   []float32 // BatchNorm2D: gamma / sqrt(var + eps)
	shift   []float32 // BatchNorm2D: beta - mean*scale
}

// NewModel проверяет, что набор параметров в точности совпадает с
// архитектурой (имена и формы), и готовит слои к исполнению.
func NewModel(arch Architecture, params map[string]entity.Tensor) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if err := matchParams(arch, params); err != nil {
		return nil, err
	}

	m := &Model{arch: arch, params: make(map[string]entity.Tensor, len(params))}
	for name, t := range params {
		m.params[name] = entity.Tensor{
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float32(nil), t.Data...),
		}
	}

	for _, l := range arch.Layers {
		s := step{layer: l}
		switch l.Kind {
		case Conv2D:
			w := m.params[l.Name+".weight"]
			cols := l.In * l.Kernel * l.Kernel
			s.weights = blas32.General{Rows: l.Out, Cols: cols, Stride: cols, Data: w.Data}
			s.bias = m.params[l.Name+".bias"].Data
		case Linear:
			w := m.params[l.Name+".weight"]
			s.weights = blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: w.Data}
			s.bias = m.params[l.Name+".bias"].Data
		case BatchNorm2D:
			gamma := m.params[l.Name+".weight"].Data
			beta := m.params[l.Name+".bias"].Data
			mean := m.params[l.Name+".running_mean"].Data
			variance := m.params[l.Name+".running_var"].Data
			s.scale = make([]float32, l.Out)
			s.shift = make([]float32, l.Out)
			for c := 0; c < l.Out; c++ {
				sc := float64(gamma[c]) / math.Sqrt(float64(variance[c])+l.Eps)
				s.scale[c] = float32(sc)
				s.shift[c] = float32(float64(beta[c]) - float64(mean[c])*sc)
			}
		}
		m.steps = append(m.steps, s)
	}
	return m, nil
}

func matchParams(arch Architecture, params map[string]entity.Tensor) error {
	expected := make(map[string][]int)
	var problems []string
	for _, p := range arch.Params() {
		expected[p.Name] = p.Shape
		t, ok := params[p.Name]
		switch {
		case !ok:
			problems = append(problems, "missing "+p.Name)
		case !entity.SameShape(t.Shape, p.Shape):
			problems = append(problems, fmt.Sprintf("%s has shape %v, want %v", p.Name, t.Shape, p.Shape))
		case t.Validate() != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", p.Name, t.Validate()))
		}
	}
	for name := range params {
		if _, ok := expected[name]; !ok {
			problems = append(problems, "unexpected "+name)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("parameters do not match %s: %s", arch.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Architecture описание сети.
func (m *Model) Architecture() Architecture { return m.arch }

// InputShape ожидаемая форма входа.
func (m *Model) InputShape() []int { return m.arch.InputShape() }

// Param возвращает копию параметра.
func (m *Model) Param(name string) (entity.Tensor, bool) {
	t, ok := m.params[name]
	if !ok {
		return entity.Tensor{}, false
	}
	return entity.Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float32(nil), t.Data...)}, true
}

// Infer прямой проход и softmax по логитам.
func (m *Model) Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error) {
	logits, err := m.Logits(ctx, input)
	if err != nil {
		return entity.ClassProbabilities{}, err
	}
	return Probabilities(logits)
}

// Probabilities softmax по логитам классификатора на entity.NumClasses классов.
func Probabilities(logits []float32) (entity.ClassProbabilities, error) {
	var probs entity.ClassProbabilities
	if len(logits) != entity.NumClasses {
		return probs, fmt.Errorf("%w: got %d logits, want %d", entity.ErrShapeMismatch, len(logits), entity.NumClasses)
	}
	copy(probs[:], softmax(logits))
	return probs, nil
}

// Logits прямой проход без нормализации выхода. Dropout на инференсе — тождество.
func (m *Model) Logits(ctx context.Context, input entity.Tensor) ([]float32, error) {
	want := m.arch.InputShape()
	if !entity.SameShape(input.Shape, want) || len(input.Data) != entity.NumElements(want) {
		return nil, fmt.Errorf("%w: got %v with %d values, want %v", entity.ErrShapeMismatch, input.Shape, len(input.Data), want)
	}

	x := activation{
		c:    want[1],
		h:    want[2],
		w:    want[3],
		data: append([]float32(nil), input.Data...),
	}
	for _, s := range m.steps {
		switch s.layer.Kind {
		case Conv2D:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x = conv2d(x, s.weights, s.bias, s.layer.Kernel, s.layer.Padding)
		case BatchNorm2D:
			x = batchNorm(x, s.scale, s.shift)
		case ReLU:
			x = relu(x)
		case MaxPool2D:
			x = maxPool(x, s.layer.Kernel)
		case GlobalAvgPool:
			x = globalAvgPool(x)
		case Flatten:
			x = flatten(x)
		case Linear:
			x = linear(x, s.weights, s.bias)
		case Dropout:
		}
	}
	return x.data, nil
}
