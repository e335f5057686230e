// Package session holds the per-wallet state of a connected dashboard.
package session

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"iot-ledger-backend/internal/units"
)

// Session is what a connected wallet sees about itself.
type Session struct {
	Account     string `json:"account"`
	Balance     string `json:"balance"`
	IsAdmin     bool   `json:"isAdmin"`
	IsConnected bool   `json:"isConnected"`
}

// RoleReader answers role queries against the access manager.
type RoleReader interface {
	AdminRole(ctx context.Context) (common.Hash, error)
	HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error)
}

// BalanceReader returns native balances in wei.
type BalanceReader interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Resolver computes sessions. It keeps no cache; every call queries the
// ledger again.
type Resolver struct {
	admin    common.Address
	roles    RoleReader
	balances BalanceReader
}

// NewResolver creates a resolver. The admin address is trusted without a
// role query; an empty one disables the allowlist.
func NewResolver(adminAddress string, roles RoleReader, balances BalanceReader) *Resolver {
	r := &Resolver{roles: roles, balances: balances}
	if common.IsHexAddress(adminAddress) {
		r.admin = common.HexToAddress(adminAddress)
	}
	return r
}

// Resolve looks up the balance and admin status of account concurrently.
// Lookup failures degrade to a zero balance and no admin rights.
func (r *Resolver) Resolve(ctx context.Context, account common.Address) Session {
	s := Session{Account: account.Hex(), Balance: units.FormatBalance(nil), IsConnected: true}

	var g errgroup.Group
	g.Go(func() error {
		wei, err := r.balances.Balance(ctx, account)
		if err != nil {
			log.Printf("Error fetching balance of %s: %v", s.Account, err)
			return nil
		}
		s.Balance = units.FormatBalance(wei)
		return nil
	})
	g.Go(func() error {
		s.IsAdmin = r.IsAdmin(ctx, account)
		return nil
	})
	_ = g.Wait()

	return s
}

// IsAdmin reports whether account may use the admin routes. It fails closed.
func (r *Resolver) IsAdmin(ctx context.Context, account common.Address) bool {
	if r.admin != (common.Address{}) && account == r.admin {
		return true
	}
	role, err := r.roles.AdminRole(ctx)
	if err != nil {
		log.Printf("Error reading admin role: %v", err)
		return false
	}
	ok, err := r.roles.HasRole(ctx, role, account)
	if err != nil {
		log.Printf("Error checking admin role of %s: %v", account.Hex(), err)
		return false
	}
	return ok
}
