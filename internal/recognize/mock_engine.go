package recognize

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/yomitori/internal/models"
)

// MockEngine is a deterministic engine for tests. Outputs are keyed by image
// file name; unknown images get Default.
type MockEngine struct {
	mu      sync.Mutex
	outputs map[string]Output
	errs    map[string]error
	calls   []string
	// Default is returned for images without a scripted output.
	Default Output
	// Block makes every call wait until its context ends.
	Block bool
}

// NewMockEngine returns an engine with no scripted outputs.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		outputs: make(map[string]Output),
		errs:    make(map[string]error),
	}
}

// SetOutput scripts the output for the image named name.
func (e *MockEngine) SetOutput(name string, out Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[name] = out
}

// SetText scripts name to return text with every word at confidence conf.
func (e *MockEngine) SetText(name, text string, conf int) {
	words := strings.Fields(text)
	tokens := make([]models.Token, len(words))
	for i, w := range words {
		tokens[i] = models.Token{Text: w, Confidence: conf}
	}
	e.SetOutput(name, Output{Text: text, Tokens: tokens})
}

// SetError scripts name to fail with err.
func (e *MockEngine) SetError(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[name] = err
}

// Calls returns the image names recognized so far, in call order.
func (e *MockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *MockEngine) Name() string { return "mock" }

// Recognize returns the scripted output for req.Path.
func (e *MockEngine) Recognize(ctx context.Context, req Request) (Output, error) {
	name := filepath.Base(req.Path)
	e.mu.Lock()
	e.calls = append(e.calls, name)
	out, ok := e.outputs[name]
	err := e.errs[name]
	block := e.Block
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	if err != nil {
		return Output{}, err
	}
	if !ok {
		out = e.Default
	}
	return out, nil
}

// Check always succeeds.
func (e *MockEngine) Check(ctx context.Context) error { return nil }
