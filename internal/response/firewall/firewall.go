// Package firewall provides the drop-rule backends of the response
// controller. Backends register themselves with the factory by name.
package firewall

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
)

// ErrUnavailable means the host has no usable firewall. The controller
// treats it as a simulated success.
var ErrUnavailable = errors.New("firewall: backend unavailable")

func init() {
	factory.RegisterFirewall("iptables", func(cfg *config.Config) (model.Firewall, error) {
		return NewIPTables("iptables", cfg.Response.Firewall.Chain), nil
	})
	factory.RegisterFirewall("simulate", func(cfg *config.Config) (model.Firewall, error) {
		return NewSimulated(), nil
	})
}

// Simulated records rules in memory and touches nothing on the host.
type Simulated struct {
	mu    sync.Mutex
	rules map[string]struct{}
}

// NewSimulated creates an empty simulated firewall.
func NewSimulated() *Simulated {
	return &Simulated{rules: make(map[string]struct{})}
}

// Block records a drop rule for ip.
func (s *Simulated) Block(ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[ip] = struct{}{}
	logger.Infof("[simulate] DROP %s", ip)
	return nil
}

// Unblock removes the drop rule for ip.
func (s *Simulated) Unblock(ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, ip)
	logger.Infof("[simulate] ACCEPT %s", ip)
	return nil
}

// Has reports whether ip currently has a drop rule.
func (s *Simulated) Has(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rules[ip]
	return ok
}

func ipv4Key(ip string) ([]byte, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return nil, fmt.Errorf("nftables backend only supports IPv4, got %q", ip)
	}
	return []byte(parsed), nil
}
