// Package admin is the authorization boundary around top-up decisions and
// operator tooling. Callers arrive pre-authenticated; this package only
// checks that the acting user holds the admin role before letting a decision
// through.
package admin

import (
	"context"
	"errors"

	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/topup"
)

// ErrUnauthorizedApprover is returned when the acting user lacks the admin role.
var ErrUnauthorizedApprover = errors.New("caller is not an authorized approver")

// RoleProvider resolves whether a user holds the admin role. Role resolution
// lives outside this service; deployments plug in their own directory.
type RoleProvider interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StaticRoleProvider is a RoleProvider backed by a fixed list of user IDs,
// loaded from configuration.
type StaticRoleProvider struct {
	admins map[string]struct{}
}

// NewStaticRoleProvider creates a role provider from a list of admin user IDs.
func NewStaticRoleProvider(adminIDs []string) *StaticRoleProvider {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &StaticRoleProvider{admins: admins}
}

func (p *StaticRoleProvider) IsAdmin(_ context.Context, userID string) (bool, error) {
	_, ok := p.admins[userID]
	return ok, nil
}

// Gateway wraps the top-up decision operations with the role check.
type Gateway struct {
	topups *topup.Service
	roles  RoleProvider
}

// NewGateway creates an admin gateway.
func NewGateway(topups *topup.Service, roles RoleProvider) *Gateway {
	return &Gateway{topups: topups, roles: roles}
}

// Authorize verifies the acting user holds the admin role.
func (g *Gateway) Authorize(ctx context.Context, adminID string) error {
	if adminID == "" {
		return ErrUnauthorizedApprover
	}
	ok, err := g.roles.IsAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorizedApprover
	}
	return nil
}

// Approve authorizes the caller, then approves the request.
func (g *Gateway) Approve(ctx context.Context, requestID, adminID, notes string) (*ledger.Wallet, error) {
	if err := g.Authorize(ctx, adminID); err != nil {
		return nil, err
	}
	return g.topups.Approve(ctx, requestID, adminID, notes)
}

// Reject authorizes the caller, then rejects the request.
func (g *Gateway) Reject(ctx context.Context, requestID, adminID, reason string) (*topup.TopupRequest, error) {
	if err := g.Authorize(ctx, adminID); err != nil {
		return nil, err
	}
	return g.topups.Reject(ctx, requestID, adminID, reason)
}

// ListByStatus authorizes the caller, then lists requests in the given state.
func (g *Gateway) ListByStatus(ctx context.Context, adminID string, status topup.Status, limit int) ([]*topup.TopupRequest, error) {
	if err := g.Authorize(ctx, adminID); err != nil {
		return nil, err
	}
	return g.topups.ListByStatus(ctx, status, limit)
}
