package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	trendWindowMonths = 12
	topSpecialtyLimit = 5
)

// Service coordinates aggregate queries with the cache layer. Concurrent
// requests for the same key collapse into one loader via singleflight.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// GetSummary returns the dashboard summary for the given scope. An empty
// scope aggregates platform-wide.
func (s *Service) GetSummary(ctx context.Context, scopeUserID string) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, keySummary(scopeUserID))
	if err != nil {
		return Summary{}, err
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			return s.loadSummary(ctx, scopeUserID)
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return value.(Summary), nil
}

func (s *Service) loadSummary(ctx context.Context, scopeUserID string) (Summary, error) {
	var (
		byStatus  map[string]int
		byUrgency map[string]int
		providers int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.StatusCounts(gctx, scopeUserID)
		return err
	})
	g.Go(func() error {
		var err error
		byUrgency, err = s.repo.UrgencyCounts(gctx, scopeUserID)
		return err
	})
	g.Go(func() error {
		var err error
		providers, err = s.repo.ActiveProviders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	accepted := byStatus["accepted"] + byStatus["completed"]
	resolved := accepted + byStatus["declined"]
	rate := 0.0
	if resolved > 0 {
		rate = float64(accepted) / float64(resolved)
	}

	return Summary{
		TotalReferrals:  total,
		ByStatus:        byStatus,
		ByUrgency:       byUrgency,
		AcceptanceRate:  rate,
		ActiveProviders: providers,
		GeneratedAt:     s.now().UTC(),
	}, nil
}

// GetTrend returns monthly referral volume over the trailing window.
func (s *Service) GetTrend(ctx context.Context, scopeUserID string) ([]TrendPoint, error) {
	key, err := s.cache.BuildKey(ctx, keyTrend(scopeUserID, trendWindowMonths))
	if err != nil {
		return nil, err
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var points []TrendPoint
		err := s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (interface{}, error) {
			return s.repo.MonthlyTrend(ctx, scopeUserID, trendWindowMonths)
		})
		return points, err
	})
	if err != nil {
		return nil, err
	}
	return value.([]TrendPoint), nil
}

// GetTopSpecialties ranks specialties by referral volume.
func (s *Service) GetTopSpecialties(ctx context.Context, scopeUserID string) ([]SpecialtyCount, error) {
	key, err := s.cache.BuildKey(ctx, keySpecialties(scopeUserID, topSpecialtyLimit))
	if err != nil {
		return nil, err
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var out []SpecialtyCount
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.repo.TopSpecialties(ctx, scopeUserID, topSpecialtyLimit)
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return value.([]SpecialtyCount), nil
}

// Warm precomputes the platform-wide aggregates so the first dashboard view
// after an invalidation does not pay the query cost. Run from the worker.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.GetSummary(ctx, ""); err != nil {
		return err
	}
	if _, err := s.GetTrend(ctx, ""); err != nil {
		return err
	}
	_, err := s.GetTopSpecialties(ctx, "")
	return err
}

// Invalidate bumps the cache version so all keys roll over.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
