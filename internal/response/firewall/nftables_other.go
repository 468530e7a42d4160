//go:build !linux

package firewall

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/model"
)

func init() {
	factory.RegisterFirewall("nftables", func(cfg *config.Config) (model.Firewall, error) {
		return nil, ErrUnavailable
	})
}
