package response

import (
	"fmt"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"

	// Registers the audit log backends.
	_ "Go2NetGuard/internal/response/audit"
)

// NewFromConfig wires a controller from the response section of cfg.
func NewFromConfig(cfg *config.Config, notifier model.Notifier, m *metrics.Metrics) (*Controller, error) {
	wl, err := NewWhitelist(cfg.Response.Whitelist, cfg.Response.BlockablePrefixes)
	if err != nil {
		return nil, fmt.Errorf("failed to build whitelist: %w", err)
	}
	fw, err := factory.NewFirewall(cfg)
	if err != nil {
		return nil, err
	}
	audit, err := factory.NewAuditLog(cfg)
	if err != nil {
		return nil, err
	}

	opts := Options{
		BlockSeverities: cfg.Response.BlockSeverities,
		BlockDuration:   cfg.Response.BlockDuration,
		MaxBlocked:      cfg.Response.MaxBlocked,
	}
	return NewController(opts, fw, wl, audit, notifier, m), nil
}
