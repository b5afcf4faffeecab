package query

import (
	"context"
	"sort"
	"time"

	"github.com/viktsys/bolsaingest/market"
	"github.com/viktsys/bolsaingest/metrics"
	"github.com/viktsys/bolsaingest/models"
)

const (
	DefaultDays         = 1
	DefaultRankingLimit = 10
	// MaxDays caps history ranges; longer requests are served as MaxDays.
	MaxDays = 36500
)

// Store is the read side of the snapshot table.
type Store interface {
	Latest(ctx context.Context) ([]models.PriceSnapshot, error)
	Window(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceSnapshot, error)
}

// Service answers the dashboard's read requests. It keeps no state between
// calls.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock returns a copy of the service that reads the time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Latest returns the most recent snapshot of every stored symbol.
func (s *Service) Latest(ctx context.Context) ([]models.PriceSnapshot, error) {
	defer observe("latest", time.Now())
	return s.store.Latest(ctx)
}

// History returns the price series of symbol over the last days days.
// One day is returned at full resolution; longer ranges keep only the last
// snapshot of each Caracas calendar day.
func (s *Service) History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	defer observe("history", time.Now())

	if days < 1 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}
	now := s.now().UTC()
	from := now.AddDate(0, 0, -days)

	rows, err := s.store.Window(ctx, symbol, from, now)
	if err != nil {
		return nil, err
	}
	if days > 1 {
		rows = lastPerDay(rows)
	}

	points := make([]models.HistoryPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.HistoryPoint{
			Price:       r.Price,
			TimeOfQuote: r.TimeOfQuote,
			CapturedAt:  r.CapturedAt,
		})
	}
	return points, nil
}

// lastPerDay keeps the closing snapshot of each calendar day. rows must be
// ordered by (captured_at, id) ascending, so the last row seen for a day is
// the one with the greatest captured_at and, among equals, the highest id.
func lastPerDay(rows []models.PriceSnapshot) []models.PriceSnapshot {
	out := make([]models.PriceSnapshot, 0, len(rows))
	lastKey := ""
	for _, r := range rows {
		key := market.DayKey(r.CapturedAt)
		if len(out) > 0 && key == lastKey {
			out[len(out)-1] = r
			continue
		}
		out = append(out, r)
		lastKey = key
	}
	return out
}

// Ranking orders the latest snapshots by relative change, best first, and
// keeps the top limit entries.
func (s *Service) Ranking(ctx context.Context, limit int) ([]models.RankEntry, error) {
	defer observe("ranking", time.Now())

	if limit < 1 {
		limit = DefaultRankingLimit
	}
	latest, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(latest, func(i, j int) bool {
		if c := latest[i].RelChange.Cmp(latest[j].RelChange); c != 0 {
			return c > 0
		}
		return latest[i].Symbol < latest[j].Symbol
	})
	if len(latest) > limit {
		latest = latest[:limit]
	}

	entries := make([]models.RankEntry, 0, len(latest))
	for i, snap := range latest {
		entries = append(entries, models.RankEntry{Position: i + 1, PriceSnapshot: snap})
	}
	return entries, nil
}

func observe(operation string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
