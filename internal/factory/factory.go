package factory

import (
	"fmt"
	"log"
	"sort"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
)

// FirewallFactory builds a firewall backend from the configuration.
type FirewallFactory func(cfg *config.Config) (model.Firewall, error)

// AuditLogFactory builds an audit log backend from the configuration.
type AuditLogFactory func(cfg *config.Config) (model.AuditLog, error)

var (
	firewalls = make(map[string]FirewallFactory)
	auditLogs = make(map[string]AuditLogFactory)
)

// RegisterFirewall registers a firewall backend under name.
func RegisterFirewall(name string, factory FirewallFactory) {
	if _, exists := firewalls[name]; exists {
		panic(fmt.Sprintf("firewall backend '%s' already registered", name))
	}
	firewalls[name] = factory
}

// RegisterAuditLog registers an audit log backend under name.
func RegisterAuditLog(name string, factory AuditLogFactory) {
	if _, exists := auditLogs[name]; exists {
		panic(fmt.Sprintf("audit log backend '%s' already registered", name))
	}
	auditLogs[name] = factory
}

// NewFirewall creates the backend named by response.firewall.backend.
func NewFirewall(cfg *config.Config) (model.Firewall, error) {
	name := cfg.Response.Firewall.Backend
	log.Printf("Creating firewall backend: '%s'\n", name)

	factory, ok := firewalls[name]
	if !ok {
		return nil, fmt.Errorf("unknown firewall backend: '%s'", name)
	}
	fw, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating firewall backend '%s': %w", name, err)
	}
	return fw, nil
}

// NewAuditLog creates the backend named by response.audit.backend.
func NewAuditLog(cfg *config.Config) (model.AuditLog, error) {
	name := cfg.Response.Audit.Backend
	log.Printf("Creating audit log backend: '%s'\n", name)

	factory, ok := auditLogs[name]
	if !ok {
		return nil, fmt.Errorf("unknown audit log backend: '%s'", name)
	}
	al, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating audit log backend '%s': %w", name, err)
	}
	return al, nil
}

// Firewalls lists the registered firewall backends.
func Firewalls() []string {
	return sortedKeys(firewalls)
}

// AuditLogs lists the registered audit log backends.
func AuditLogs() []string {
	return sortedKeys(auditLogs)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
