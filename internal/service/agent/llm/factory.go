package llm

import (
	"context"
	"fmt"
	"time"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
)

// New selects a backend from configuration. A provider without credentials
// yields a backend that fails every call with a config error before any
// network traffic.
func New(cfg config.AIConfig) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return unconfigured{name: cfg.Provider, missing: "OpenAI API key"}, nil
		}
		return NewOpenAI(cfg.OpenAI), nil
	case config.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return unconfigured{name: cfg.Provider, missing: "Gemini API key"}, nil
		}
		return NewGemini(cfg.Gemini), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

type unconfigured struct {
	name    string
	missing string
}

func (u unconfigured) Name() string { return u.name }

func (u unconfigured) Generate(context.Context, Request) (string, Usage, error) {
	return "", Usage{}, fault.Newf(fault.KindConfig, "llm."+u.name, "%s missing", u.missing)
}

// Recorder receives the usage of every successful call.
type Recorder interface {
	Record(u Usage)
}

// Meter bounds each call with a timeout and forwards usage to a Recorder.
type Meter struct {
	backend  Backend
	recorder Recorder
	timeout  time.Duration
}

// NewMeter wraps backend. A zero timeout leaves calls unbounded.
func NewMeter(backend Backend, recorder Recorder, timeout time.Duration) *Meter {
	return &Meter{backend: backend, recorder: recorder, timeout: timeout}
}

// Name returns the wrapped backend's provider name.
func (m *Meter) Name() string {
	return m.backend.Name()
}

// Generate calls the wrapped backend and records its usage on success.
func (m *Meter) Generate(ctx context.Context, req Request) (string, Usage, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	text, usage, err := m.backend.Generate(ctx, req)
	if err != nil {
		if fault.KindOf(err) == fault.KindUnknown {
			err = fault.Wrap(fault.KindModel, "llm."+m.backend.Name(), err)
		}
		return "", Usage{}, err
	}
	if m.recorder != nil {
		m.recorder.Record(usage)
	}
	return text, usage, nil
}

var _ Backend = (*Meter)(nil)
