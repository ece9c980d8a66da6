package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cropadviser/pkg/domain"
)

// Stats are the admin dashboard counters.
type Stats struct {
	Users        int64 `json:"users"`
	Appointments int64 `json:"appointments"`
	Predictions  int64 `json:"predictions"`
}

// Stats gathers entity counts concurrently.
func (a *App) Stats(ctx context.Context, actor domain.User) (Stats, error) {
	if actor.UserLevel != domain.LevelAdmin {
		return Stats{}, ErrForbidden
	}
	var stats Stats
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.store.CountUsers()
		stats.Users = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountAppointments()
		stats.Appointments = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountPredictions()
		stats.Predictions = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("gather stats: %w", err)
	}
	return stats, nil
}
