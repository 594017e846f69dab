package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"spacebooks/pkg/domain"
)

// Statistics fetches the four dashboard counts concurrently.
func (a *App) Statistics(ctx context.Context) (domain.Statistics, error) {
	var stats domain.Statistics
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.store.UserCount()
		stats.TotalUsers = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.BookCount()
		stats.TotalBooks = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.PurchaseCount()
		stats.TotalPurchases = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.FeaturedBookCount()
		stats.FeaturedBooks = n
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Statistics{}, err
	}
	return stats, nil
}
