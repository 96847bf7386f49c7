package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	embedsql "github.com/medlot/claimload/internal/sql"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so resolution can run inside or outside a claim transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MemberInfo is the scheme row a claim binds to.
type MemberInfo struct {
	MSID        int64
	PlanID      int64
	PlanNetwork int64
	PolicyID    int64
	MemberID    string
}

// ProviderInfo is the resolved provider row.
type ProviderInfo struct {
	ProviderID int64
	Name       string
	Type       int
}

// ResolveMember finds the member scheme for a member number, probing nin,
// national id, and member id with one parameterized query. The newest scheme
// row wins.
func ResolveMember(ctx context.Context, q Querier, memberNumber string) (MemberInfo, error) {
	var m MemberInfo
	err := q.QueryRow(ctx, embedsql.ResolveMember, memberNumber).
		Scan(&m.MSID, &m.PlanID, &m.PlanNetwork, &m.PolicyID, &m.MemberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return MemberInfo{}, &MemberNotFoundError{MemberNumber: memberNumber}
	}
	if err != nil {
		return MemberInfo{}, fmt.Errorf("resolve member %q: %w", memberNumber, err)
	}
	return m, nil
}

// ResolveProvider finds a provider by facility-name containment or exact id.
// First row wins. A blank name never matches: the containment pattern would
// otherwise match every provider.
func ResolveProvider(ctx context.Context, q Querier, nameOrID string) (ProviderInfo, error) {
	var p ProviderInfo
	if strings.TrimSpace(nameOrID) == "" {
		return ProviderInfo{}, &ProviderNotFoundError{Provider: nameOrID}
	}
	err := q.QueryRow(ctx, embedsql.ResolveProvider, nameOrID).
		Scan(&p.ProviderID, &p.Name, &p.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProviderInfo{}, &ProviderNotFoundError{Provider: nameOrID}
	}
	if err != nil {
		return ProviderInfo{}, fmt.Errorf("resolve provider %q: %w", nameOrID, err)
	}
	return p, nil
}

// ResolveNetwork returns the network the second-stage service lookup is
// scoped by: the provider's active tariff network when set, else the
// member's plan network, else 0 (unscoped).
func ResolveNetwork(ctx context.Context, q Querier, providerID, planNetwork int64) (int64, error) {
	var networkID, ptID int64
	err := q.QueryRow(ctx, embedsql.ProviderNetwork, providerID).Scan(&networkID, &ptID)
	if errors.Is(err, pgx.ErrNoRows) {
		networkID = 0
	} else if err != nil {
		return 0, fmt.Errorf("resolve network for provider %d: %w", providerID, err)
	}
	if networkID != 0 {
		return networkID, nil
	}
	if planNetwork != 0 {
		return planNetwork, nil
	}
	return 0, nil
}
