package ops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xmimu/manbo-tts/internal/protocol"
	"github.com/xmimu/manbo-tts/internal/saver"
	"github.com/xmimu/manbo-tts/internal/synth"
)

// Handler executes one operation invocation. The returned string is the
// success value; operations without one return "".
type Handler func(ctx context.Context, payload []byte) (string, error)

// Registry is the static table mapping operation name to handler. It is
// built once at process start and never mutated afterwards.
type Registry struct {
	entries map[string]Handler
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("operation name empty")
	}
	if h == nil {
		return fmt.Errorf("operation %q has nil handler", name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("operation %q already registered", name)
	}
	r.entries[name] = h
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.entries[name]
	return h, ok
}

// Names returns operation names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// NewCoreRegistry wires the two core operations onto their handlers.
func NewCoreRegistry(synthClient *synth.Client, audioSaver *saver.Saver) (*Registry, error) {
	r := NewRegistry()

	err := r.Register(protocol.OpSynthesizeSpeech, func(ctx context.Context, payload []byte) (string, error) {
		var req protocol.SynthesizeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return "", fmt.Errorf("decode request: %w", err)
		}
		return synthClient.Synthesize(ctx, synth.Request{
			Text:   req.Text,
			APIKey: req.APIKey,
			Format: req.Format,
		})
	})
	if err != nil {
		return nil, err
	}

	err = r.Register(protocol.OpSaveAudio, func(ctx context.Context, payload []byte) (string, error) {
		var req protocol.SaveRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return "", fmt.Errorf("decode request: %w", err)
		}
		return "", audioSaver.Save(ctx, req.URL)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// execute runs a handler and flattens the outcome into the reply envelope.
// Errors reach the presentation layer as human-readable strings only.
func execute(ctx context.Context, h Handler, payload []byte) protocol.Result {
	value, err := h(ctx, payload)
	if err != nil {
		return protocol.Result{OK: false, Error: err.Error()}
	}
	return protocol.Result{OK: true, Value: value}
}
