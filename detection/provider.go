package detection

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/camden-git/surfaceinspect/logger"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Factory builds a Detector. It may block for a model download.
type Factory func(ctx context.Context) (Detector, error)

// Provider hands out one lazily constructed Detector. Construction runs at
// most once at a time; a failed attempt is not remembered so the next call
// tries again.
type Provider struct {
	mu       sync.RWMutex
	detector Detector
	factory  Factory
	log      *logger.Logger
}

func NewProvider(factory Factory, log *logger.Logger) *Provider {
	return &Provider{factory: factory, log: log}
}

// Get returns the detector, constructing it on first use.
func (p *Provider) Get(ctx context.Context) (Detector, error) {
	p.mu.RLock()
	det := p.detector
	p.mu.RUnlock()
	if det != nil {
		return det, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil {
		return p.detector, nil
	}

	p.log.Info("detection: initializing detector")
	det, err := p.factory(ctx)
	if err != nil {
		p.log.Error("detection: detector initialization failed", "error", err)
		return nil, err
	}
	p.detector = det
	return det, nil
}

// Loaded reports whether the detector has been constructed.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.detector != nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector == nil {
		return nil
	}
	err := p.detector.Close()
	p.detector = nil
	return err
}

// Options selects and configures a detector backend.
type Options struct {
	Backend    string
	ModelPath  string
	ModelURL   string
	NamesPath  string
	RemoteURL  string
	HTTPClient *http.Client
}

// Warnings lists the problems with opts an operator should hear about at
// startup, before the first analysis runs into them.
func (o Options) Warnings() []string {
	if o.Backend != BackendONNX && o.Backend != "" {
		return nil
	}
	if !InProcessAvailable {
		return []string{"DETECTOR_BACKEND=onnx but this binary was built without -tags gocv; every analysis will fail until it is rebuilt or DETECTOR_BACKEND=remote is set"}
	}
	if info, err := os.Stat(o.ModelPath); err == nil && !info.IsDir() && info.Size() > 0 {
		return nil
	}
	if o.ModelURL == "" {
		return []string{fmt.Sprintf("no model at '%s' and MODEL_URL is not set; analyses will fail until the model is installed", o.ModelPath)}
	}
	return []string{fmt.Sprintf("no model at '%s'; it is downloaded in the background at startup, run 'surfaceinspect fetch-model' before serving to avoid the wait", o.ModelPath)}
}

// NewFactory returns the Factory for opts.Backend.
func NewFactory(opts Options, log *logger.Logger) (Factory, error) {
	switch opts.Backend {
	case BackendONNX, "":
		return func(ctx context.Context) (Detector, error) {
			if !InProcessAvailable {
				// fail before a model download that could never be used
				return nil, ErrInProcessUnavailable
			}
			names, err := LoadNames(opts.NamesPath)
			if err != nil {
				return nil, err
			}
			if err := EnsureModel(ctx, opts.HTTPClient, opts.ModelPath, opts.ModelURL, log); err != nil {
				return nil, err
			}
			det, err := NewONNXDetector(opts.ModelPath, names, log)
			if err != nil {
				return nil, err
			}
			return det, nil
		}, nil
	case BackendRemote:
		return func(ctx context.Context) (Detector, error) {
			names, err := LoadNames(opts.NamesPath)
			if err != nil {
				return nil, err
			}
			det, err := NewRemoteDetector(opts.RemoteURL, names, opts.HTTPClient, log)
			if err != nil {
				return nil, err
			}
			return det, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", opts.Backend)
	}
}
