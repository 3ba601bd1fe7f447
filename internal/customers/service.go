package customers

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	if id <= 0 {
		return nil, errors.New("invalid customer ID")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("customer name is required")
	}
	return s.repo.Create(ctx, Customer{Name: strings.TrimSpace(req.Name), Phone: req.Phone, Email: req.Email})
}

func (s *Service) Update(ctx context.Context, id int64, req CreateCustomerRequest) (*Customer, error) {
	if id <= 0 {
		return nil, errors.New("invalid customer ID")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("customer name is required")
	}
	if err := s.repo.Update(ctx, id, Customer{Name: strings.TrimSpace(req.Name), Phone: req.Phone, Email: req.Email}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid customer ID")
	}
	return s.repo.Delete(ctx, id)
}

// AdjustLoyaltyPoints applies a manual points correction. Points may
// go negative on the delta but the stored balance clamps at zero.
func (s *Service) AdjustLoyaltyPoints(ctx context.Context, id int64, delta int) (*Customer, error) {
	if id <= 0 {
		return nil, errors.New("invalid customer ID")
	}
	if delta == 0 {
		return s.repo.Get(ctx, id)
	}
	if err := s.repo.AddLoyaltyPoints(ctx, id, delta); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
