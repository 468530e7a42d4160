//go:build linux

package firewall

import (
	"fmt"
	"sync"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/model"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

const blockedSetName = "blocked4"

func init() {
	factory.RegisterFirewall("nftables", func(cfg *config.Config) (model.Firewall, error) {
		return NewNFTables(cfg.Response.Firewall.NFTTable)
	})
}

// NFTables keeps blocked addresses in an nftables set that an input-hook
// rule drops. Only IPv4 sources are supported.
type NFTables struct {
	mu    sync.Mutex
	conn  *nftables.Conn
	table *nftables.Table
	set   *nftables.Set
}

// NewNFTables creates (or recreates) the table, set, chain and drop rule.
func NewNFTables(tableName string) (*NFTables, error) {
	if tableName == "" {
		tableName = "gonguard"
	}
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create nftables connection: %w", err)
	}

	table := &nftables.Table{Family: nftables.TableFamilyIPv4, Name: tableName}
	// Add then delete so the batch succeeds whether or not the table exists.
	conn.AddTable(table)
	conn.DelTable(table)
	conn.AddTable(table)

	set := &nftables.Set{Table: table, Name: blockedSetName, KeyType: nftables.TypeIPAddr}
	if err := conn.AddSet(set, nil); err != nil {
		return nil, fmt.Errorf("failed to add nftables set: %w", err)
	}

	chain := conn.AddChain(&nftables.Chain{
		Name:     "input",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			// ip saddr
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 12, Len: 4},
			&expr.Lookup{SourceRegister: 1, SetName: set.Name, SetID: set.ID},
			&expr.Verdict{Kind: expr.VerdictDrop},
		},
	})

	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("failed to install nftables ruleset: %w", err)
	}
	return &NFTables{conn: conn, table: table, set: set}, nil
}

// Block adds ip to the blocked set.
func (n *NFTables) Block(ip string) error {
	key, err := ipv4Key(ip)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.SetAddElements(n.set, []nftables.SetElement{{Key: key}}); err != nil {
		return fmt.Errorf("failed to add %s to nftables set: %w", ip, err)
	}
	return n.conn.Flush()
}

// Unblock removes ip from the blocked set.
func (n *NFTables) Unblock(ip string) error {
	key, err := ipv4Key(ip)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.SetDeleteElements(n.set, []nftables.SetElement{{Key: key}}); err != nil {
		return fmt.Errorf("failed to remove %s from nftables set: %w", ip, err)
	}
	return n.conn.Flush()
}
