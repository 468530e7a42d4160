package response

import (
	"fmt"
	"net"
	"sync"
	"time"

	"Go2NetGuard/internal/logger"
)

const ownAddrRefresh = time.Minute

// Whitelist decides which addresses must never be blocked.
type Whitelist struct {
	blockable []*net.IPNet
	static    map[string]struct{}

	mu       sync.Mutex
	own      map[string]struct{}
	ownAt    time.Time
	ownAddrs func() ([]net.Addr, error)
	now      func() time.Time
}

// NewWhitelist builds a whitelist from the static addresses and the CIDR
// prefixes that may be blocked.
func NewWhitelist(static, blockablePrefixes []string) (*Whitelist, error) {
	w := &Whitelist{
		static:   make(map[string]struct{}, len(static)),
		ownAddrs: net.InterfaceAddrs,
		now:      time.Now,
	}
	for _, s := range static {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid whitelist address %q", s)
		}
		w.static[ip.String()] = struct{}{}
	}
	for _, p := range blockablePrefixes {
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid blockable prefix %q: %w", p, err)
		}
		w.blockable = append(w.blockable, n)
	}
	return w, nil
}

// IsExempt reports whether ip must not be blocked: it is unparsable,
// outside the blockable prefixes, one of this host's addresses, or listed
// explicitly.
func (w *Whitelist) IsExempt(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	if !w.inBlockable(parsed) {
		return true
	}
	key := parsed.String()
	if _, ok := w.static[key]; ok {
		return true
	}
	return w.isOwn(key)
}

func (w *Whitelist) inBlockable(ip net.IP) bool {
	for _, n := range w.blockable {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (w *Whitelist) isOwn(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.own == nil || w.now().Sub(w.ownAt) > ownAddrRefresh {
		w.refreshOwn()
	}
	_, ok := w.own[key]
	return ok
}

func (w *Whitelist) refreshOwn() {
	addrs, err := w.ownAddrs()
	if err != nil {
		logger.Warnf("Failed to list interface addresses: %v", err)
		if w.own == nil {
			w.own = make(map[string]struct{})
		}
		w.ownAt = w.now()
		return
	}
	own := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		switch v := a.(type) {
		case *net.IPNet:
			own[v.IP.String()] = struct{}{}
		case *net.IPAddr:
			own[v.IP.String()] = struct{}{}
		}
	}
	w.own = own
	w.ownAt = w.now()
}
