package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketflow/auth"
	"marketflow/pagination"
)

var (
	ErrForbidden       = errors.New("listing: forbidden")
	ErrInvalidArgument = errors.New("listing: invalid argument")
)

type Service struct {
	repo  Repository
	idGen func() string
	now   func() time.Time
}

type CreateParams struct {
	OwnerID        string
	Kind           Kind
	Title          string
	Description    string
	Location       string
	DailyRateCents *int64
}

type ListResult struct {
	Items []Listing
	Meta  pagination.Meta
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Listing, error) {
	if params.OwnerID == "" {
		return Listing{}, fmt.Errorf("missing owner id: %w", ErrInvalidArgument)
	}
	if !validKind(params.Kind) {
		return Listing{}, fmt.Errorf("invalid kind %q: %w", params.Kind, ErrInvalidArgument)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Listing{}, fmt.Errorf("title required: %w", ErrInvalidArgument)
	}
	if params.Kind == KindEquipment {
		if params.DailyRateCents == nil || *params.DailyRateCents <= 0 {
			return Listing{}, fmt.Errorf("equipment requires a positive daily rate: %w", ErrInvalidArgument)
		}
	} else if params.DailyRateCents != nil {
		return Listing{}, fmt.Errorf("job listings carry no daily rate: %w", ErrInvalidArgument)
	}

	l := Listing{
		ID:             s.idGen(),
		OwnerID:        params.OwnerID,
		Kind:           params.Kind,
		Title:          title,
		Description:    strings.TrimSpace(params.Description),
		Location:       strings.TrimSpace(params.Location),
		DailyRateCents: params.DailyRateCents,
		Status:         StatusAvailable,
	}

	return s.repo.Insert(ctx, l)
}

// Get returns the listing without side effects. Used by the request core to
// resolve ownership and availability.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}

// View returns the listing and bumps its view counter. The increment is
// best-effort; a lost update never fails the read.
func (s *Service) View(ctx context.Context, id string) (Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	_ = s.repo.IncrementViews(ctx, id)
	return l, nil
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	page := pagination.Normalize(filters.Page, filters.PageSize)
	filters.Page = page.Number
	filters.PageSize = page.Limit

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Meta: pagination.MetaFor(page, total)}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id, actorID string, role auth.Role, status Status) (Listing, error) {
	if !validStatus(status) {
		return Listing{}, fmt.Errorf("invalid status %q: %w", status, ErrInvalidArgument)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, actorID, status, role == auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish absent from not-owned for the caller.
			if _, getErr := s.repo.Get(ctx, id); getErr == nil {
				return Listing{}, ErrForbidden
			}
		}
		return Listing{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id, actorID string, role auth.Role) error {
	deleted, err := s.repo.Delete(ctx, id, actorID, role == auth.RoleAdmin)
	if err != nil {
		return err
	}
	if !deleted {
		// Distinguish absent from not-owned for the caller.
		if _, err := s.repo.Get(ctx, id); err != nil {
			return err
		}
		return ErrForbidden
	}
	return nil
}

// AdjustApplicants is exposed for the request core's counter side effect.
func (s *Service) AdjustApplicants(ctx context.Context, id string, delta int) error {
	return s.repo.AdjustApplicants(ctx, id, delta)
}
