package collection

import (
	"context"
	"fmt"
)

// Flow is a convenience builder: Conf, pick businesses, Run, without
// touching the underlying wiring.
type Flow struct {
	cfg       *Config
	selection Selection
	opts      []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// Select adds ids ("a,b" or "*") of category to the run, replacing the
// businesses section of the config.
func (f *Flow) Select(category, ids string) *Flow {
	if f == nil {
		return nil
	}
	if f.selection == nil {
		f.selection = Selection{}
	}
	if prev, ok := f.selection[category]; ok {
		ids = prev + "," + ids
	}
	f.selection[category] = ids
	return f
}

// Build returns a Runtime ready to run.
func (f *Flow) Build() (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	opts := f.opts
	if len(f.selection) > 0 {
		opts = append(append([]RuntimeOption(nil), opts...), WithSelection(f.selection))
	}
	return NewRuntime(f.cfg, opts...)
}

// Run is a shortcut for Build + Runtime.Run.
func (f *Flow) Run(ctx context.Context) (Report, error) {
	rt, err := f.Build()
	if err != nil {
		return Report{}, err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
