package reporting

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Dashboard is the till-screen summary for the current day.
type Dashboard struct {
	Date           string        `json:"date"`
	TodaySales     SalesSnapshot `json:"today_sales"`
	PaymentTotals  []MethodTotal `json:"payment_totals"`
	ActiveProducts int           `json:"active_products"`
	LowStockCount  int           `json:"low_stock_count"`
	RecentOrders   []RecentOrder `json:"recent_orders"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// Service assembles dashboard reports. Concurrent requests for the
// same day collapse onto a single build via singleflight; the result
// is then cached in Redis for a short TTL.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// GetDashboard returns today's dashboard, building it at most once per
// cache window.
func (s *Service) GetDashboard(ctx context.Context) (*Dashboard, error) {
	day := s.now().Format("2006-01-02")
	key := "reporting:dashboard:" + day

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var d Dashboard
		err := s.cache.FetchJSON(ctx, key, &d, func(ctx context.Context) (interface{}, error) {
			return s.build(ctx, day)
		})
		if err != nil {
			return nil, err
		}
		return &d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dashboard), nil
}

// build fans the four dashboard queries out in parallel.
func (s *Service) build(ctx context.Context, day string) (*Dashboard, error) {
	startOfDay, err := time.ParseInLocation("2006-01-02", day, s.now().Location())
	if err != nil {
		return nil, fmt.Errorf("dashboard day: %w", err)
	}

	d := &Dashboard{Date: day, GeneratedAt: s.now().UTC()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.TodaySales, err = s.repo.SalesSince(ctx, startOfDay)
		return err
	})
	g.Go(func() error {
		var err error
		d.PaymentTotals, err = s.repo.PaymentsSince(ctx, startOfDay)
		return err
	})
	g.Go(func() error {
		var err error
		d.ActiveProducts, d.LowStockCount, err = s.repo.ProductCounts(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.RecentOrders, err = s.repo.RecentOrders(ctx, 10)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// InvalidateToday drops the cached dashboard so the next read rebuilds
// it. Payment settlement calls this when an order completes.
func (s *Service) InvalidateToday(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "reporting:dashboard:"+s.now().Format("2006-01-02"))
}
