package provider

import "context"

// Func adapts an in-process function to the Provider interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, req Request) (Response, error)
}

// ID implements Provider.
func (f Func) ID() string { return f.Name }

// Call implements Provider.
func (f Func) Call(ctx context.Context, req Request) (Response, error) {
	return f.Fn(ctx, req)
}
