package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RepositoryPort defines the read access the service needs.
type RepositoryPort interface {
	List(ctx context.Context, params ListParams) ([]Entry, error)
	ActionCounts(ctx context.Context, since time.Time) ([]ActionCount, error)
}

// Result wraps a timeline page with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// Service serves audit timeline reads. It carries no write path.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns entries matching the filters with paging.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	params := ListParams{
		ActorID:      filters.ActorID,
		Action:       strings.TrimSpace(filters.Action),
		ResourceType: strings.TrimSpace(filters.ResourceType),
		From:         filters.From,
		To:           filters.To,
		Offset:       offset,
		Limit:        pageSize + 1,
	}
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Digest aggregates privileged-action counts over the trailing window.
func (s *Service) Digest(ctx context.Context, window time.Duration) ([]ActionCount, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.repo.ActionCounts(ctx, time.Now().UTC().Add(-window))
}
