package provider

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region config
// GRPCConfig describes one gRPC-backed upstream. Method is the full unary
// method name; request and response are google.protobuf.Struct messages.
type GRPCConfig struct {
	ID            string
	Addr          string
	Method        string        // e.g. "/marketdata.v1.Quotes/GetQuote"
	Timeout       time.Duration // per-call deadline; 0 = caller's deadline only
	HealthService string        // service name for grpc.health.v1 probes; "" = server overall
}

// #endregion config

// #region client-struct
// GRPCProvider calls an upstream over gRPC. The per-call timeout bounds
// the underlying connection work, so calls abandoned by the stage
// wrapper do not linger.
type GRPCProvider struct {
	cfg    GRPCConfig
	conn   *grpc.ClientConn
	cc     grpc.ClientConnInterface
	health healthpb.HealthClient
}

// #endregion client-struct

// #region constructor
// NewGRPCProvider creates a lazily-connecting client for cfg.Addr.
func NewGRPCProvider(cfg GRPCConfig) (*GRPCProvider, error) {
	if cfg.ID == "" || cfg.Method == "" {
		return nil, fmt.Errorf("grpc provider: id and method are required")
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", cfg.Addr, err)
	}
	p := NewGRPCProviderWithConn(cfg, conn)
	p.conn = conn
	return p, nil
}

// NewGRPCProviderWithConn builds a provider over an existing connection.
// The caller keeps ownership of cc.
func NewGRPCProviderWithConn(cfg GRPCConfig, cc grpc.ClientConnInterface) *GRPCProvider {
	return &GRPCProvider{
		cfg:    cfg,
		cc:     cc,
		health: healthpb.NewHealthClient(cc),
	}
}

// #endregion constructor

// #region close
// Close shuts down the connection if this provider opened it.
func (p *GRPCProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// #endregion close

// ID implements Provider.
func (p *GRPCProvider) ID() string { return p.cfg.ID }

// #region call
// Call sends req.Params as a Struct and returns the response Struct as a map.
func (p *GRPCProvider) Call(ctx context.Context, req Request) (Response, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	in, err := structpb.NewStruct(req.Params)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s request: %w", req.Capability, err)
	}
	out := &structpb.Struct{}
	if err := p.cc.Invoke(ctx, p.cfg.Method, in, out); err != nil {
		return Response{}, fmt.Errorf("%s rpc: %w", p.cfg.Method, err)
	}
	return Response{ProviderID: p.cfg.ID, Data: out.AsMap()}, nil
}

// #endregion call

// #region probe
// Probe runs a grpc.health.v1 check and fails unless the server is SERVING.
func (p *GRPCProvider) Probe(ctx context.Context) error {
	resp, err := p.health.Check(ctx, &healthpb.HealthCheckRequest{Service: p.cfg.HealthService})
	if err != nil {
		return fmt.Errorf("health rpc: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", resp.GetStatus())
	}
	return nil
}

// #endregion probe
