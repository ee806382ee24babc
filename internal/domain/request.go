package domain

import (
	"maps"
	"strings"
)

// Way selects the backend a Request is dispatched to.
type Way string

const (
	WayWeb   Way = "web"
	WayDB    Way = "db"
	WayShell Way = "shell"
	WayFile  Way = "file"
	WaySDK   Way = "sdk"
	WayTest  Way = "test"
)

// Ways lists every supported Way in dispatch order.
var Ways = []Way{WayWeb, WayDB, WayShell, WayFile, WaySDK, WayTest}

// ParseWay normalizes s and reports whether it names a supported Way.
func ParseWay(s string) (Way, bool) {
	w := Way(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Ways {
		if w == known {
			return w, true
		}
	}
	return w, false
}

const (
	// DefaultCallback is the Builder callback used when a Request names none.
	DefaultCallback = "parse"
	// NoopCallback is reserved for the engine's synthetic safety-valve requests.
	NoopCallback = "__noop__"
)

// Request is the unit of work handed to the Downloader.
type Request struct {
	// ID is stamped by the engine at enqueue time.
	ID       string
	Way      Way
	Callback string
	// Meta travels untouched to the Response produced for this Request.
	Meta   any
	Params map[string]any
	// Business is assigned by the engine, never by plugins.
	Business string
}

// NewRequest builds a Request for way with a copy of params.
func NewRequest(way Way, params map[string]any) *Request {
	return &Request{
		Way:      way,
		Callback: DefaultCallback,
		Params:   maps.Clone(params),
	}
}

// WithCallback sets the Builder callback that will receive the Response.
func (r *Request) WithCallback(name string) *Request {
	r.Callback = name
	return r
}

// WithMeta attaches correlation data.
func (r *Request) WithMeta(meta any) *Request {
	r.Meta = meta
	return r
}

// CallbackName returns the effective callback, falling back to DefaultCallback.
func (r *Request) CallbackName() string {
	if r.Callback == "" {
		return DefaultCallback
	}
	return r.Callback
}

// Param returns the named backend parameter.
func (r *Request) Param(key string) (any, bool) {
	if r.Params == nil {
		return nil, false
	}
	v, ok := r.Params[key]
	return v, ok
}

// IsNoop reports whether r is an engine-synthesized safety-valve request.
func (r *Request) IsNoop() bool {
	return r.Way == WayTest && r.Callback == NoopCallback
}

// Response carries a backend payload back to the owning Builder.
type Response struct {
	Payload any
	// Meta is copied from the originating Request by the engine.
	Meta    any
	Request *Request
}

// DefaultItemCallback is the Pipeline callback used when an Item names none.
const DefaultItemCallback = "process_item"

// Item is a structured record headed for a Pipeline.
type Item struct {
	Payload  any
	Callback string
}

// NewItem wraps payload for the default pipeline callback.
func NewItem(payload any) *Item {
	return &Item{Payload: payload, Callback: DefaultItemCallback}
}

// WithCallback routes the Item to a named Pipeline callback.
func (i *Item) WithCallback(name string) *Item {
	i.Callback = name
	return i
}

// CallbackName returns the effective callback, falling back to DefaultItemCallback.
func (i *Item) CallbackName() string {
	if i.Callback == "" {
		return DefaultItemCallback
	}
	return i.Callback
}
