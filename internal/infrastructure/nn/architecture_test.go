package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mri-classifier/internal/domain/entity"
)

func TestBrainTumorCNN_Layout(t *testing.T) {
	arch := BrainTumorCNN()
	require.NoError(t, arch.Validate())
	require.Equal(t, []int{1, 3, 224, 224}, arch.InputShape())
	require.Equal(t, entity.Labels, arch.Labels)

	var convs []Layer
	pools := 0
	var dropout []float64
	var linear [][2]int
	for _, l := range arch.Layers {
		switch l.Kind {
		case Conv2D:
			convs = append(convs, l)
			require.Equal(t, 3, l.Kernel)
			require.Equal(t, 1, l.Padding)
		case MaxPool2D:
			pools++
		case Dropout:
			dropout = append(dropout, l.Rate)
		case Linear:
			linear = append(linear, [2]int{l.In, l.Out})
		}
	}

	widths := []int{3}
	for _, c := range convs {
		widths = append(widths, c.Out)
	}
	require.Equal(t, []int{3, 64, 128, 256, 256, 512, 512, 1024, 1024}, widths)
	require.Equal(t, 5, pools)
	require.Equal(t, []float64{0.5, 0.4, 0.3}, dropout)
	require.Equal(t, [][2]int{{1024, 512}, {512, 256}, {256, 128}, {128, 4}}, linear)
}

func TestBrainTumorCNN_ParamNames(t *testing.T) {
	specs := BrainTumorCNN().Params()
	byName := make(map[string][]int)
	for _, p := range specs {
		byName[p.Name] = p.Shape
	}

	// 8 свёрток × (2 + 4 BN) + 4 линейных × 2
	require.Len(t, specs, 8*6+4*2)
	require.Equal(t, []int{64, 3, 3, 3}, byName["conv1.0.weight"])
	require.Equal(t, []int{1024}, byName["conv5b.1.running_var"])
	require.Equal(t, []int{256, 256, 3, 3}, byName["conv3b.0.weight"])
	require.Equal(t, []int{512, 1024}, byName["classifier.1.weight"])
	require.Equal(t, []int{4}, byName["classifier.10.bias"])
}

func TestScaledBrainTumorCNN(t *testing.T) {
	arch := ScaledBrainTumorCNN(32)
	require.NoError(t, arch.Validate())
	require.Equal(t, "brain-tumor-cnn-div32", arch.Name)
	require.Less(t, arch.NumParameters(), BrainTumorCNN().NumParameters()/100)

	// Имена параметров не зависят от ширины.
	full, small := BrainTumorCNN().Params(), arch.Params()
	require.Len(t, small, len(full))
	for i := range full {
		require.Equal(t, full[i].Name, small[i].Name)
	}
}

func TestArchitecture_ValidateRejectsBrokenChain(t *testing.T) {
	arch := ScaledBrainTumorCNN(16)
	arch.Layers[4].In++ // conv2.0
	require.Error(t, arch.Validate())

	arch = ScaledBrainTumorCNN(16)
	arch.Input = [3]int{3, 16, 16}
	require.Error(t, arch.Validate())
}

func TestLayerKind_String(t *testing.T) {
	require.Equal(t, "Conv2D", Conv2D.String())
	require.Equal(t, "LayerKind(42)", LayerKind(42).String())
}

func TestLookupArchitecture(t *testing.T) {
	arch, err := LookupArchitecture("brain-tumor-cnn")
	require.NoError(t, err)
	require.Equal(t, BrainTumorCNN().NumParameters(), arch.NumParameters())

	arch, err = LookupArchitecture("brain-tumor-cnn-div32")
	require.NoError(t, err)
	require.Equal(t, ScaledBrainTumorCNN(32).Name, arch.Name)

	for _, name := range []string{"", "resnet18", "brain-tumor-cnn-div1", "brain-tumor-cnn-div4x", "brain-tumor-cnn-div0"} {
		_, err = LookupArchitecture(name)
		require.Error(t, err, name)
	}
}
