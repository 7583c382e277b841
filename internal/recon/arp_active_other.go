//go:build !linux

package recon

import (
	"context"
	"net/netip"
	"time"
)

// ActiveResolver is unavailable outside Linux.
type ActiveResolver struct{}

// NewActiveResolver always fails on this platform.
func NewActiveResolver(string, time.Duration) (*ActiveResolver, error) {
	return nil, ErrARPUnsupported
}

func (r *ActiveResolver) ResolveMAC(context.Context, netip.Addr) (string, error) {
	return "", ErrARPUnsupported
}

func (r *ActiveResolver) Close() error { return nil }
