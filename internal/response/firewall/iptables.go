package firewall

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// IPTables appends and deletes DROP rules by running the iptables binary.
type IPTables struct {
	binary string
	chain  string
}

// NewIPTables creates a backend that runs binary against chain.
func NewIPTables(binary, chain string) *IPTables {
	if chain == "" {
		chain = "INPUT"
	}
	return &IPTables{binary: binary, chain: chain}
}

// Block runs `iptables -A <chain> -s ip -j DROP`.
func (t *IPTables) Block(ip string) error {
	return t.run("-A", t.chain, "-s", ip, "-j", "DROP")
}

// Unblock runs `iptables -D <chain> -s ip -j DROP`.
func (t *IPTables) Unblock(ip string) error {
	return t.run("-D", t.chain, "-s", ip, "-j", "DROP")
}

func (t *IPTables) run(args ...string) error {
	cmd := exec.Command(t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrUnavailable
		}
		return fmt.Errorf("%s %s: %w: %s", t.binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
