// Package entitlement answers "which books does this user own" across a
// two-tier repository: the durable store and the Redis snapshot. Reads
// return the union of both tiers, so a grant recorded only in the
// snapshot after a failed durable write is never lost, and serve the
// snapshot alone when the store is unreachable. Reads that hit the store
// refresh the snapshot with the merged set.
package entitlement

import (
	"context"
	"log/slog"
	"sort"

	"spacebooks/internal/snapshot"
	"spacebooks/pkg/domain"
	"spacebooks/pkg/store"
)

// Repository resolves a user's entitlements.
type Repository struct {
	store    store.Store
	snapshot snapshot.Store
}

// NewRepository builds a two-tier repository. snapshot may be nil, in
// which case durable read failures surface to the caller.
func NewRepository(s store.Store, snap snapshot.Store) *Repository {
	return &Repository{store: s, snapshot: snap}
}

// List returns one entitlement per owned book, tagged with the tier it
// was resolved from. The result is the union of both tiers: a grant that
// exists only in the snapshot (a purchase whose durable write failed)
// stays entitled until the store confirms it. Repeat purchases of the
// same book collapse to a single entitlement.
func (r *Repository) List(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	purchases, err := r.store.ListPurchasesByUser(userID)
	if err != nil {
		if r.snapshot == nil {
			return nil, err
		}
		slog.Warn("durable entitlement read failed, serving snapshot", "user_id", userID, "err", err)
		ids, snapErr := r.snapshot.PurchasedBookIDs(ctx, userID)
		if snapErr != nil {
			// Both tiers down; report the durable error, it is the root cause.
			return nil, err
		}
		return fromBookIDs(ids, domain.SourceCachedFallback), nil
	}

	seen := make(map[string]struct{}, len(purchases))
	out := make([]domain.Entitlement, 0, len(purchases))
	for _, p := range purchases {
		if _, ok := seen[p.BookID]; ok {
			continue
		}
		seen[p.BookID] = struct{}{}
		out = append(out, domain.Entitlement{BookID: p.BookID, Source: domain.SourceDurable})
	}

	if r.snapshot != nil {
		snapIDs, snapErr := r.snapshot.PurchasedBookIDs(ctx, userID)
		if snapErr != nil {
			// Cannot prove the snapshot holds nothing extra, so leave it
			// untouched rather than overwrite a session-local grant.
			slog.Warn("entitlement snapshot read failed", "user_id", userID, "err", snapErr)
			sortByBookID(out)
			return out, nil
		}
		for _, id := range snapIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, domain.Entitlement{BookID: id, Source: domain.SourceCachedFallback})
		}
		merged := make([]string, 0, len(out))
		for _, e := range out {
			merged = append(merged, e.BookID)
		}
		if err := r.snapshot.ReplacePurchasedBookIDs(ctx, userID, merged); err != nil {
			slog.Warn("entitlement snapshot refresh failed", "user_id", userID, "err", err)
		}
	}
	sortByBookID(out)
	return out, nil
}

// Owns reports whether the user is entitled to the book.
func (r *Repository) Owns(ctx context.Context, userID, bookID string) (bool, error) {
	list, err := r.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, e := range list {
		if e.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

func sortByBookID(list []domain.Entitlement) {
	sort.Slice(list, func(i, j int) bool { return list[i].BookID < list[j].BookID })
}

func fromBookIDs(ids []string, source domain.EntitlementSource) []domain.Entitlement {
	sort.Strings(ids)
	out := make([]domain.Entitlement, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Entitlement{BookID: id, Source: source})
	}
	return out
}
