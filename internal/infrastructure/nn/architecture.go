package nn

import (
	"fmt"

	"mri-classifier/internal/domain/entity"
)

// LayerKind тип слоя в описании сети.
type LayerKind int

const (
	Conv2D LayerKind = iota
	BatchNorm2D
	ReLU
	MaxPool2D
	GlobalAvgPool
	Flatten
	Linear
	Dropout
)

var layerKindNames = map[LayerKind]string{
	Conv2D:        "Conv2D",
	BatchNorm2D:   "BatchNorm2D",
	ReLU:          "ReLU",
	MaxPool2D:     "MaxPool2D",
	GlobalAvgPool: "GlobalAvgPool",
	Flatten:       "Flatten",
	Linear:        "Linear",
	Dropout:       "Dropout",
}

func (k LayerKind) String() string {
	if s, ok := layerKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("LayerKind(%d)", int(k))
}

// Layer описание одного слоя. Name — префикс имён параметров слоя.
type Layer struct {
	Kind    LayerKind
	Name    string
	In      int     // входные каналы / признаки
	Out     int     // выходные каналы / признаки
	Kernel  int     // Conv2D, MaxPool2D
	Padding int     // Conv2D
	Rate    float64 // Dropout, на инференсе не применяется
	Eps     float64 // BatchNorm2D
}

// ParamSpec имя и форма одного параметра.
type ParamSpec struct {
	Name  string
	Shape []int
}

// Params параметры слоя в порядке сохранения.
func (l Layer) Params() []ParamSpec {
	switch l.Kind {
	case Conv2D:
		return []ParamSpec{
			{l.Name + ".weight", []int{l.Out, l.In, l.Kernel, l.Kernel}},
			{l.Name + ".bias", []int{l.Out}},
		}
	case BatchNorm2D:
		return []ParamSpec{
			{l.Name + ".weight", []int{l.Out}},
			{l.Name + ".bias", []int{l.Out}},
			{l.Name + ".running_mean", []int{l.Out}},
			{l.Name + ".running_var", []int{l.Out}},
		}
	case Linear:
		return []ParamSpec{
			{l.Name + ".weight", []int{l.Out, l.In}},
			{l.Name + ".bias", []int{l.Out}},
		}
	}
	return nil
}

// Architecture декларативное описание последовательной сети.
type Architecture struct {
	Name   string
	Input  [3]int // C, H, W
	Labels [entity.NumClasses]entity.Label
	Layers []Layer
}

// InputShape форма входа с батчем 1.
func (a Architecture) InputShape() []int {
	return []int{1, a.Input[0], a.Input[1], a.Input[2]}
}

// Params все именованные параметры сети.
func (a Architecture) Params() []ParamSpec {
	var specs []ParamSpec
	for _, l := range a.Layers {
		specs = append(specs, l.Params()...)
	}
	return specs
}

// NumParameters общее число скалярных параметров.
func (a Architecture) NumParameters() int {
	n := 0
	for _, p := range a.Params() {
		n += entity.NumElements(p.Shape)
	}
	return n
}

// Validate прогоняет формы через все слои и проверяет их согласованность.
func (a Architecture) Validate() error {
	c, h, w := a.Input[0], a.Input[1], a.Input[2]
	if c <= 0 || h <= 0 || w <= 0 {
		return fmt.Errorf("architecture %s: invalid input %v", a.Name, a.Input)
	}
	flat := false
	for i, l := range a.Layers {
		switch l.Kind {
		case Conv2D:
			if flat || l.In != c {
				return fmt.Errorf("layer %d (%s): expects %d channels, got %d", i, l.Name, l.In, c)
			}
			h = h + 2*l.Padding - l.Kernel + 1
			w = w + 2*l.Padding - l.Kernel + 1
			c = l.Out
		case BatchNorm2D:
			if flat || l.Out != c {
				return fmt.Errorf("layer %d (%s): expects %d channels, got %d", i, l.Name, l.Out, c)
			}
		case MaxPool2D:
			if l.Kernel < 1 {
				return fmt.Errorf("layer %d (%s): invalid pool size %d", i, l.Name, l.Kernel)
			}
			h /= l.Kernel
			w /= l.Kernel
		case GlobalAvgPool:
			h, w = 1, 1
		case Flatten:
			c, h, w = c*h*w, 1, 1
			flat = true
		case Linear:
			if !flat || l.In != c {
				return fmt.Errorf("layer %d (%s): expects %d features, got %d", i, l.Name, l.In, c)
			}
			c = l.Out
		case ReLU, Dropout:
		default:
			return fmt.Errorf("layer %d (%s): unsupported kind %v", i, l.Name, l.Kind)
		}
		if h <= 0 || w <= 0 {
			return fmt.Errorf("layer %d (%s): spatial size collapsed to %dx%d", i, l.Name, h, w)
		}
	}
	if !flat || c != entity.NumClasses {
		return fmt.Errorf("architecture %s: produces %d outputs, want %d", a.Name, c, entity.NumClasses)
	}
	return nil
}

// convBlock conv → BN → ReLU [→ MaxPool 2x2] под именем вида "conv3a".
func convBlock(name string, in, out int, pool bool) []Layer {
	layers := []Layer{
		{Kind: Conv2D, Name: name + ".0", In: in, Out: out, Kernel: 3, Padding: 1},
		{Kind: BatchNorm2D, Name: name + ".1", Out: out, Eps: 1e-5},
		{Kind: ReLU, Name: name + ".2"},
	}
	if pool {
		layers = append(layers, Layer{Kind: MaxPool2D, Name: name + ".3", Kernel: 2})
	}
	return layers
}

// BrainTumorCNN сеть, на весах которой работает сервис. Имена параметров
// совпадают со state dict исходной модели.
func BrainTumorCNN() Architecture {
	return ScaledBrainTumorCNN(1)
}

// ScaledBrainTumorCNN та же топология с шириной каналов, делённой на div.
// Нужна для быстрых проверок, div=1 даёт рабочую сеть.
func ScaledBrainTumorCNN(div int) Architecture {
	if div < 1 {
		div = 1
	}
	ch := func(n int) int {
		if n/div < 1 {
			return 1
		}
		return n / div
	}

	var layers []Layer
	layers = append(layers, convBlock("conv1", 3, ch(64), true)...)
	layers = append(layers, convBlock("conv2", ch(64), ch(128), true)...)
	layers = append(layers, convBlock("conv3a", ch(128), ch(256), false)...)
	layers = append(layers, convBlock("conv3b", ch(256), ch(256), true)...)
	layers = append(layers, convBlock("conv4a", ch(256), ch(512), false)...)
	layers = append(layers, convBlock("conv4b", ch(512), ch(512), true)...)
	layers = append(layers, convBlock("conv5a", ch(512), ch(1024), false)...)
	layers = append(layers, convBlock("conv5b", ch(1024), ch(1024), true)...)
	layers = append(layers,
		Layer{Kind: GlobalAvgPool, Name: "global_pool"},
		Layer{Kind: Flatten, Name: "classifier.0"},
		Layer{Kind: Linear, Name: "classifier.1", In: ch(1024), Out: ch(512)},
		Layer{Kind: ReLU, Name: "classifier.2"},
		Layer{Kind: Dropout, Name: "classifier.3", Rate: 0.5},
		Layer{Kind: Linear, Name: "classifier.4", In: ch(512), Out: ch(256)},
		Layer{Kind: ReLU, Name: "classifier.5"},
		Layer{Kind: Dropout, Name: "classifier.6", Rate: 0.4},
		Layer{Kind: Linear, Name: "classifier.7", In: ch(256), Out: ch(128)},
		Layer{Kind: ReLU, Name: "classifier.8"},
		Layer{Kind: Dropout, Name: "classifier.9", Rate: 0.3},
		Layer{Kind: Linear, Name: "classifier.10", In: ch(128), Out: entity.NumClasses},
	)

	name := "brain-tumor-cnn"
	if div > 1 {
		name = fmt.Sprintf("%s-div%d", name, div)
	}
	return Architecture{
		Name:   name,
		Input:  [3]int{3, 224, 224},
		Labels: entity.Labels,
		Layers: layers,
	}
}

// LookupArchitecture архитектура по имени из манифеста весов.
func LookupArchitecture(name string) (Architecture, error) {
	base := BrainTumorCNN().Name
	if name == base {
		return BrainTumorCNN(), nil
	}
	var div int
	if _, err := fmt.Sscanf(name, base+"-div%d", &div); err == nil && div > 1 {
		if arch := ScaledBrainTumorCNN(div); arch.Name == name {
			return arch, nil
		}
	}
	return Architecture{}, fmt.Errorf("unknown architecture %q", name)
}
