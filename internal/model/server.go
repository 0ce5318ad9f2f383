// Package model wraps the ONNX FaceNet network behind a concurrency-safe embedder.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Config selects the model file and runtime knobs.
type Config struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	// Sessions is the number of execution contexts; each serves one request at a time.
	Sessions       int
	IntraOpThreads int
}

// runner executes one forward pass over buffers bound at construction.
type runner interface {
	Run() error
}

// session is one exclusive execution context with its own tensor buffers.
type session struct {
	run     runner
	input   []float32
	output  []float32
	destroy func()
}

// Server owns the loaded model. It is immutable after Load.
type Server struct {
	inputName   string
	outputName  string
	inputShape  []int64
	outputShape []int64
	sessions    []*session
	pool        chan *session
	ownsEnv     bool
}

// Load initialises the ONNX runtime and creates cfg.Sessions sessions for the model.
func Load(cfg Config) (*Server, error) {
	if cfg.Sessions < 1 {
		cfg.Sessions = 1
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnv = true
	}

	fail := func(err error) (*Server, error) {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return fail(fmt.Errorf("failed to read model signature: %w", err))
	}

	in, err := selectSlot("input", inputs, cfg.InputName)
	if err != nil {
		return fail(err)
	}
	out, err := selectSlot("output", outputs, cfg.OutputName)
	if err != nil {
		return fail(err)
	}

	return newServer(cfg, in, out, ownsEnv)
}

func newServer(cfg Config, in, out ort.InputOutputInfo, ownsEnv bool) (*Server, error) {
	s := &Server{
		inputName:   in.Name,
		outputName:  out.Name,
		inputShape:  resolveShape(in.Dimensions),
		outputShape: resolveShape(out.Dimensions),
		pool:        make(chan *session, cfg.Sessions),
		ownsEnv:     ownsEnv,
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	for i := 0; i < cfg.Sessions; i++ {
		sess, err := s.newSession(cfg.ModelPath, options)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create ONNX session %d: %w", i, err)
		}
		s.sessions = append(s.sessions, sess)
		s.pool <- sess
	}

	log.Info().
		Str("model", cfg.ModelPath).
		Str("input", s.inputName).
		Ints64("input_shape", s.inputShape).
		Str("output", s.outputName).
		Ints64("output_shape", s.outputShape).
		Int("sessions", cfg.Sessions).
		Msg("Model loaded")

	return s, nil
}

func (s *Server) newSession(modelPath string, options *ort.SessionOptions) (*session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.inputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.outputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	adv, err := ort.NewAdvancedSession(modelPath,
		[]string{s.inputName}, []string{s.outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}

	return &session{
		run:    adv,
		input:  inputTensor.GetData(),
		output: outputTensor.GetData(),
		destroy: func() {
			adv.Destroy()
			inputTensor.Destroy()
			outputTensor.Destroy()
		},
	}, nil
}

// selectSlot picks the named slot, or the first declared one when name is empty,
// and requires it to be a float32 tensor.
func selectSlot(kind string, infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model declares no %s", kind)
	}

	info := infos[0]
	if name != "" {
		found := false
		for _, candidate := range infos {
			if candidate.Name == name {
				info = candidate
				found = true
				break
			}
		}
		if !found {
			return ort.InputOutputInfo{}, fmt.Errorf("model has no %s named %q", kind, name)
		}
	}

	if info.DataType != ort.TensorElementDataTypeFloat {
		return ort.InputOutputInfo{}, fmt.Errorf("%s %q has element type %v, want float32", kind, info.Name, info.DataType)
	}
	return info, nil
}

// resolveShape fixes dynamic dimensions (batch, usually) to 1.
func resolveShape(dims ort.Shape) []int64 {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// checkTensor rejects tensors that do not match the declared input exactly.
func checkTensor(t *Tensor, want []int64) error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if len(t.Shape) != len(want) {
		return fmt.Errorf("tensor shape %v does not match model input %v", t.Shape, want)
	}
	for i := range want {
		if t.Shape[i] != want[i] {
			return fmt.Errorf("tensor shape %v does not match model input %v", t.Shape, want)
		}
	}
	if int64(len(t.Data)) != NumElements(want) {
		return fmt.Errorf("tensor holds %d values, model input %v needs %d", len(t.Data), want, NumElements(want))
	}
	return nil
}

// Embed runs one forward pass and returns the flattened output tensor.
// It blocks until a session is free or ctx is done.
func (s *Server) Embed(ctx context.Context, t *Tensor) ([]float32, error) {
	if err := checkTensor(t, s.inputShape); err != nil {
		return nil, &InferenceError{Op: "bind input", Err: err}
	}

	var sess *session
	select {
	case sess = <-s.pool:
	case <-ctx.Done():
		return nil, &InferenceError{Op: "acquire session", Err: ctx.Err()}
	}
	defer func() { s.pool <- sess }()

	copy(sess.input, t.Data)

	if err := sess.run.Run(); err != nil {
		return nil, &InferenceError{Op: "run", Err: err}
	}

	embedding := make([]float32, len(sess.output))
	copy(embedding, sess.output)
	return embedding, nil
}

// InputShape returns the resolved model input shape.
func (s *Server) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

// OutputShape returns the resolved model output shape.
func (s *Server) OutputShape() []int64 {
	return append([]int64(nil), s.outputShape...)
}

// Dimensions returns the embedding length.
func (s *Server) Dimensions() int {
	return int(NumElements(s.outputShape))
}

// Close releases sessions, tensors and, when Load created it, the ONNX environment.
func (s *Server) Close() {
	for _, sess := range s.sessions {
		if sess.destroy != nil {
			sess.destroy()
		}
	}
	s.sessions = nil
	if s.ownsEnv {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warn().Err(err).Msg("Failed to destroy ONNX environment")
		}
		s.ownsEnv = false
	}
}
