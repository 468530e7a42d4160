package model

// Firewall installs and removes per-address drop rules.
type Firewall interface {
	Block(ip string) error
	Unblock(ip string) error
}

// AuditLog records response actions.
type AuditLog interface {
	// Append persists one entry. Implementations log and swallow write errors.
	Append(entry AuditEntry)

	// Recent returns up to limit entries, newest first.
	Recent(limit int) []AuditEntry
}
