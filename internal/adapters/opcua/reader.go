// Package opcua provides the opcua.read sdk callable: a one-shot read of
// OPC UA node values over a session reused per endpoint.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/multierr"

	"github.com/DJune12138/Collection3/internal/adapters/sdk"
	"github.com/DJune12138/Collection3/internal/domain"
)

// CallableName is the name under which Register exposes Pool.Read.
const CallableName = "opcua.read"

// Config captures the session details for one endpoint.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SecurityMode    string `yaml:"security_mode"`
	SecurityPolicy  string `yaml:"security_policy"`
	ApplicationName string `yaml:"application_name"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "Collection3"
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return domain.Missing("opcua", "endpoint")
	}
	return nil
}

// Reading is one node value.
type Reading struct {
	NodeID    string
	Value     float64
	Timestamp time.Time
	Status    string
}

// Pool keeps one connected client per endpoint.
type Pool struct {
	mu       sync.Mutex
	defaults Config
	clients  map[string]*opcua.Client
	connect  func(ctx context.Context, cfg Config) (*opcua.Client, error)
}

// NewPool returns a pool whose sessions use defaults for everything but the endpoint.
func NewPool(defaults Config) *Pool {
	defaults.ApplyDefaults()
	return &Pool{defaults: defaults, clients: make(map[string]*opcua.Client), connect: dial}
}

// Register exposes p.Read as the opcua.read callable.
func Register(c *sdk.Callables, p *Pool) error {
	return c.Register(CallableName, p.Read)
}

// Read fetches the current value of every node. An empty endpoint uses the
// pool's default endpoint.
func (p *Pool) Read(ctx context.Context, endpoint string, nodes []string) ([]Reading, error) {
	if endpoint == "" {
		endpoint = p.defaults.Endpoint
	}
	cfg := p.defaults
	cfg.Endpoint = endpoint
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	req, err := readRequest(nodes)
	if err != nil {
		return nil, err
	}

	client, err := p.client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := client.Read(ctx, req)
	if err != nil {
		p.drop(ctx, endpoint)
		return nil, fmt.Errorf("opcua read %s: %w", endpoint, err)
	}
	return toReadings(nodes, resp.Results)
}

func (p *Pool) client(ctx context.Context, cfg Config) (*opcua.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[cfg.Endpoint]; ok {
		return c, nil
	}
	c, err := p.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.clients[cfg.Endpoint] = c
	return c, nil
}

func (p *Pool) drop(ctx context.Context, endpoint string) {
	p.mu.Lock()
	c, ok := p.clients[endpoint]
	delete(p.clients, endpoint)
	p.mu.Unlock()
	if ok {
		_ = c.Close(ctx)
	}
}

// Close ends every session.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*opcua.Client)
	p.mu.Unlock()

	var errs error
	for endpoint, c := range clients {
		if err := c.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", endpoint, err))
		}
	}
	return errs
}

func dial(ctx context.Context, cfg Config) (*opcua.Client, error) {
	client, err := opcua.NewClient(cfg.Endpoint, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return client, nil
}

func clientOptions(cfg Config) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func readRequest(nodes []string) (*ua.ReadRequest, error) {
	if len(nodes) == 0 {
		return nil, domain.Missing("opcua", "nodes")
	}
	ids := make([]*ua.ReadValueID, 0, len(nodes))
	for _, n := range nodes {
		id, err := ua.ParseNodeID(n)
		if err != nil {
			return nil, domain.Errorf(domain.KindTypeMismatch, "opcua", "node id %q: %v", n, err)
		}
		ids = append(ids, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}
	return &ua.ReadRequest{
		NodesToRead:        ids,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	}, nil
}

func toReadings(nodes []string, results []*ua.DataValue) ([]Reading, error) {
	if len(results) != len(nodes) {
		return nil, fmt.Errorf("opcua read: %d results for %d nodes", len(results), len(nodes))
	}
	out := make([]Reading, 0, len(nodes))
	for i, dv := range results {
		r := Reading{NodeID: nodes[i], Status: dv.Status.Error()}
		if dv.Status == ua.StatusOK {
			r.Status = "ok"
			v, ok := variantToFloat(dv.Value)
			if !ok {
				return nil, domain.Errorf(domain.KindTypeMismatch, "opcua", "node %s holds unsupported type %s", nodes[i], variantType(dv.Value))
			}
			r.Value = v
		}
		r.Timestamp = dv.ServerTimestamp
		if r.Timestamp.IsZero() {
			r.Timestamp = dv.SourceTimestamp
		}
		out = append(out, r)
	}
	return out, nil
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func variantType(v *ua.Variant) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v.Value())
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}
