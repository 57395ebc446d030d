//go:build cgo

// MODUL: onnx/model
// ZWECK: Rauschvorhersage ueber einen exportierten ONNX-Graphen
// INPUT: Modell-Pfad (.onnx), Bild [1,H,W,C], Zeitschritt
// OUTPUT: Vorhergesagtes Rauschen [1,H,W,C]
// NEBENEFFEKTE: Alloziert ONNX Runtime Ressourcen, ggf. GPU Memory
// ABHAENGIGKEITEN: onnxruntime_go, pdevine/tensor, x448/float16
// HINWEISE: Close() MUSS aufgerufen werden. Eingabetypen (fp32/fp16,
//           int32/int64/float) werden aus dem Graphen gelesen.

package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
)

// Standard-Namen des Keras-Exports
const (
	DefaultImageInput = "image_input"
	DefaultTimeInput  = "time_input"
)

func init() {
	model.Register("onnx", New)
}

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// initRuntime initialisiert die ONNX Runtime einmalig.
func initRuntime(libPath string) error {
	runtimeInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// Model runs a noise-prediction graph through onnxruntime.
type Model struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession

	shape  []int
	layout Layout

	imageType ort.TensorElementDataType
	timeType  ort.TensorElementDataType
}

// New opens opts.Path. Recognized params:
//
//	input.image   image input name (default image_input)
//	input.time    timestep input name (default time_input)
//	output        output name (default: first graph output)
//	layout        nhwc or nchw
//	library       path to the onnxruntime shared library
func New(opts model.Options) (model.Model, error) {
	if opts.Path == "" {
		return nil, errors.New("onnx: model path is required")
	}

	layout, err := ParseLayout(opts.String("layout", ""))
	if err != nil {
		return nil, err
	}

	if err := initRuntime(opts.String("library", "")); err != nil {
		return nil, fmt.Errorf("%w: onnx runtime: %w", ml.ErrBackendUnavailable, err)
	}

	imageName := opts.String("input.image", DefaultImageInput)
	timeName := opts.String("input.time", DefaultTimeInput)

	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("onnx: inspect %s: %w", opts.Path, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: %s has no outputs", opts.Path)
	}

	m := &Model{
		shape:     slices.Clone(opts.Shape),
		layout:    layout,
		imageType: ort.TensorElementDataTypeFloat,
		timeType:  ort.TensorElementDataTypeInt64,
	}

	found := 0
	for _, in := range inputs {
		switch in.Name {
		case imageName:
			m.imageType = in.DataType
			found++
		case timeName:
			m.timeType = in.DataType
			found++
		}
		slog.Debug("onnx input", "name", in.Name, "type", in.DataType, "dims", in.Dimensions)
	}
	if found != 2 {
		return nil, fmt.Errorf("onnx: graph needs inputs %q and %q", imageName, timeName)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("onnx: threads: %w", err)
		}
	}

	if opts.UseGPU {
		if cudaOpts, err := ort.NewCUDAProviderOptions(); err == nil {
			if err := sessOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				slog.Warn("onnx: CUDA unavailable, using CPU", "error", err)
			}
			cudaOpts.Destroy()
		}
	}

	outputName := opts.String("output", outputs[0].Name)
	m.session, err = ort.NewDynamicAdvancedSession(opts.Path, []string{imageName, timeName}, []string{outputName}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("onnx: session: %w", err)
	}

	slog.Info("onnx model loaded", "path", opts.Path, "layout", layout, "image_type", m.imageType, "time_type", m.timeType)
	return m, nil
}

func (m *Model) Shape() []int { return slices.Clone(m.shape) }

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

func (m *Model) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("onnx: model is closed")
	}

	if !slices.Equal(image.Shape(), m.shape) {
		return nil, fmt.Errorf("onnx: image shape %v, model expects %v", image.Shape(), m.shape)
	}

	n, h, w, c := m.shape[0], m.shape[1], m.shape[2], m.shape[3]
	data := image.Floats()
	graphShape := ort.NewShape(int64(n), int64(h), int64(w), int64(c))
	if m.layout == LayoutNCHW {
		var err error
		if data, err = ToNCHW(data, n, h, w, c); err != nil {
			return nil, err
		}
		graphShape = ort.NewShape(int64(n), int64(c), int64(h), int64(w))
	}

	imageValue, err := m.imageValue(data, graphShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: image tensor: %w", err)
	}
	defer imageValue.Destroy()

	timeValue, err := m.timeValue(timestep.Ints())
	if err != nil {
		return nil, fmt.Errorf("onnx: time tensor: %w", err)
	}
	defer timeValue.Destroy()

	outputs := make([]ort.Value, 1)
	if err := m.session.Run([]ort.Value{imageValue, timeValue}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	eps, err := extractFloat32(outputs[0])
	if err != nil {
		return nil, err
	}
	if len(eps) != len(data) {
		return nil, fmt.Errorf("onnx: output has %d values, expected %d", len(eps), len(data))
	}

	if m.layout == LayoutNCHW {
		if eps, err = FromNCHW(eps, n, c, h, w); err != nil {
			return nil, err
		}
	}

	return ctx.FromFloats(eps, m.shape...), nil
}

func (m *Model) imageValue(data []float32, shape ort.Shape) (ort.Value, error) {
	switch m.imageType {
	case ort.TensorElementDataTypeFloat16:
		return ort.NewCustomDataTensor(shape, EncodeFP16(data), ort.TensorElementDataTypeFloat16)
	default:
		return ort.NewTensor(shape, data)
	}
}

func (m *Model) timeValue(ts []int32) (ort.Value, error) {
	shape := ort.NewShape(int64(len(ts)))
	switch m.timeType {
	case ort.TensorElementDataTypeInt32:
		return ort.NewTensor(shape, slices.Clone(ts))
	case ort.TensorElementDataTypeFloat:
		f := make([]float32, len(ts))
		for i, t := range ts {
			f[i] = float32(t)
		}
		return ort.NewTensor(shape, f)
	default:
		i64 := make([]int64, len(ts))
		for i, t := range ts {
			i64[i] = int64(t)
		}
		return ort.NewTensor(shape, i64)
	}
}

func extractFloat32(v ort.Value) ([]float32, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return slices.Clone(t.GetData()), nil
	case *ort.Tensor[uint16]:
		return DecodeFP16Bits(t.GetData()), nil
	case *ort.CustomDataTensor:
		return DecodeFP16(t.GetData()), nil
	default:
		return nil, fmt.Errorf("onnx: unsupported output tensor type %T", v)
	}
}
