package services

import (
	"context"
	"errors"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/repositories"
)

type throttleService struct {
	throttles repositories.ThrottleRepository
}

// NewThrottleService exposes login-throttle records to the back office.
func NewThrottleService(throttles repositories.ThrottleRepository) (ThrottleService, error) {
	if throttles == nil {
		return nil, errors.New("throttle service: repository is required")
	}
	return &throttleService{throttles: throttles}, nil
}

func (s *throttleService) List(ctx context.Context, includeIgnored bool, pager Pagination) (domain.CursorPage[LoginThrottle], error) {
	page, err := s.throttles.List(ctx, repositories.ThrottleListFilter{
		IncludeIgnored: includeIgnored,
		Pagination:     pager,
	})
	if err != nil {
		return domain.CursorPage[LoginThrottle]{}, mapRepositoryError(err)
	}
	return page, nil
}
