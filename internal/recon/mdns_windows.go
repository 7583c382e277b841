//go:build windows

package recon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MDNSResolver resolves nothing on Windows; hashicorp/mdns cannot bind the
// multicast port alongside the system responder there.
type MDNSResolver struct {
	logger *zap.Logger
}

func NewMDNSResolver(logger *zap.Logger, _ time.Duration) *MDNSResolver {
	logger.Debug("mDNS hostname lookup disabled on windows")
	return &MDNSResolver{logger: logger}
}

// Hostnames returns an empty IP to hostname map.
func (*MDNSResolver) Hostnames(context.Context) map[string]string {
	return map[string]string{}
}
