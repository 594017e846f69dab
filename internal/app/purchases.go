package app

import (
	"context"
	"fmt"
	"strings"

	"spacebooks/internal/purchase"
	"spacebooks/pkg/domain"
)

// BuyBook runs the payment flow for one book. The purchase package's
// sentinels pass through for the HTTP layer to map.
func (a *App) BuyBook(ctx context.Context, userID, bookID string) (purchase.Result, error) {
	user, err := a.GetUser(ctx, userID)
	if err != nil {
		return purchase.Result{}, err
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return purchase.Result{}, err
	}
	return a.purchases.Purchase(ctx, user, book)
}

// Entitlements lists the books the user owns, tagged with the tier each
// entitlement was resolved from.
func (a *App) Entitlements(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	return a.entitlements.List(ctx, userID)
}

// DownloadURL returns a short-lived URL for a purchased book's content.
func (a *App) DownloadURL(ctx context.Context, userID, bookID string) (string, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	owns, err := a.entitlements.Owns(ctx, userID, bookID)
	if err != nil {
		return "", fmt.Errorf("resolve entitlement: %w", err)
	}
	if !owns {
		return "", ErrNotEntitled
	}
	if strings.TrimSpace(book.ContentKey) == "" {
		return "", ErrBookContentMissing
	}
	return a.objects.PresignGet(ctx, book.ContentKey, a.presignExpiry)
}
