//go:build onnxruntime

package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
	"mri-classifier/internal/infrastructure/nn"
)

// Classifier сессия ONNX Runtime с заранее выделенными тензорами.
// Тензоры общие, поэтому прогоны сериализуются мьютексом.
type Classifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func New(opts Options) (*Classifier, error) {
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape()...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{InputName}, []string{OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: onnx session: %w", entity.ErrWeightsLoad, err)
	}

	return &Classifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (c *Classifier) InputShape() []int {
	out := make([]int, len(inputShape))
	for i, d := range inputShape {
		out[i] = int(d)
	}
	return out
}

func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error) {
	want := c.InputShape()
	if !entity.SameShape(input.Shape, want) || len(input.Data) != entity.NumElements(want) {
		return entity.ClassProbabilities{}, fmt.Errorf("%w: got %v, want %v", entity.ErrShapeMismatch, input.Shape, want)
	}
	if err := ctx.Err(); err != nil {
		return entity.ClassProbabilities{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), input.Data)
	if err := c.session.Run(); err != nil {
		return entity.ClassProbabilities{}, fmt.Errorf("inference failed: %w", err)
	}

	logits := append([]float32(nil), c.outputTensor.GetData()...)
	return nn.Probabilities(logits)
}

func (c *Classifier) Close() {
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}

var _ port.Classifier = (*Classifier)(nil)
