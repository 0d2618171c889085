package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"marketflow/auth"
	"marketflow/listing"
	"marketflow/pagination"
)

var (
	// ErrInvalidArgument signals malformed input that never reached storage.
	ErrInvalidArgument = errors.New("request: invalid argument")
	// ErrForbidden signals the permission evaluator denied the action.
	ErrForbidden = errors.New("request: forbidden")
	// ErrInvalidTransition signals the target status is not reachable from
	// the current one.
	ErrInvalidTransition = errors.New("request: invalid status transition")
	// ErrResourceUnavailable signals the resource no longer accepts requests.
	ErrResourceUnavailable = errors.New("request: resource is not accepting requests")
	// ErrSelfRequest signals a user requesting their own resource.
	ErrSelfRequest = errors.New("request: cannot request your own resource")
	// ErrKindMismatch signals a rental against a job listing or vice versa.
	ErrKindMismatch = errors.New("request: request kind does not match resource kind")
	// ErrAttachmentConflict signals both attachment forms were supplied.
	ErrAttachmentConflict = errors.New("request: attachment may be a URL or an uploaded file, not both")
	// ErrMessageTooLong signals the message exceeds the stored bound.
	ErrMessageTooLong = errors.New("request: message too long")
	// ErrNotPending signals an edit against a resolved request.
	ErrNotPending = errors.New("request: request is no longer pending")
)

const maxMessageLen = 4000

// ResourceRegistry is the slice of the listing domain the request core
// needs: resolve a resource, and nudge its applicant counter.
type ResourceRegistry interface {
	Get(ctx context.Context, id string) (listing.Listing, error)
	AdjustApplicants(ctx context.Context, id string, delta int) error
}

type Service struct {
	repo      Repository
	resources ResourceRegistry
	reads     *ReadTracker
	idGen     func() string
	now       func() time.Time
}

func NewService(repo Repository, resources ResourceRegistry) *Service {
	return &Service{
		repo:      repo,
		resources: resources,
		reads:     NewReadTracker(),
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithReadTracker replaces the in-flight read tracker, mainly for tests.
func (s *Service) WithReadTracker(t *ReadTracker) *Service {
	s.reads = t
	return s
}

type CreateParams struct {
	Kind             Kind
	ResourceID       string
	RequesterID      string
	Message          string
	AttachmentURL    string
	AttachmentFileID string
	StartDate        *time.Time
	EndDate          *time.Time
}

// Create validates the payload against the live resource, snapshots the
// owner, prices rentals, and inserts the pending row. Duplicate submissions
// surface as ErrDuplicatePending even under concurrent creation; the
// database index is the authority, not a prior read.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if !validKind(params.Kind) {
		return Request{}, fmt.Errorf("%w: invalid kind %q", ErrInvalidArgument, params.Kind)
	}
	if params.ResourceID == "" || params.RequesterID == "" {
		return Request{}, fmt.Errorf("%w: resource and requester ids required", ErrInvalidArgument)
	}

	message := strings.TrimSpace(params.Message)
	if len(message) > maxMessageLen {
		return Request{}, ErrMessageTooLong
	}
	attachmentURL := strings.TrimSpace(params.AttachmentURL)
	attachmentFile := strings.TrimSpace(params.AttachmentFileID)
	if attachmentURL != "" && attachmentFile != "" {
		return Request{}, ErrAttachmentConflict
	}

	resource, err := s.resources.Get(ctx, params.ResourceID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return Request{}, ErrResourceNotFound
		}
		return Request{}, fmt.Errorf("request: resolve resource: %w", err)
	}
	if !resource.Open() {
		return Request{}, ErrResourceUnavailable
	}
	if resource.OwnerID == params.RequesterID {
		return Request{}, ErrSelfRequest
	}
	if wantKind := resourceKind(resource.Kind); wantKind != params.Kind {
		return Request{}, ErrKindMismatch
	}

	req := Request{
		ID:          s.idGen(),
		Kind:        params.Kind,
		ResourceID:  resource.ID,
		RequesterID: params.RequesterID,
		OwnerID:     resource.OwnerID,
		Status:      StatusPending,
	}
	if message != "" {
		req.Message = &message
	}
	if attachmentURL != "" {
		req.AttachmentURL = &attachmentURL
	}
	if attachmentFile != "" {
		req.AttachmentFileID = &attachmentFile
	}

	if params.Kind == KindRental {
		if params.StartDate == nil || params.EndDate == nil {
			return Request{}, ErrInvalidDateRange
		}
		var rate int64
		if resource.DailyRateCents != nil {
			rate = *resource.DailyRateCents
		}
		total, err := ComputeTotal(*params.StartDate, *params.EndDate, rate, s.now())
		if err != nil {
			return Request{}, err
		}
		req.StartDate = params.StartDate
		req.EndDate = params.EndDate
		req.UnitRateCents = &rate
		req.PriceTotalCents = &total
	}

	created, err := s.repo.Insert(ctx, req)
	if err != nil {
		return Request{}, err
	}

	if created.Kind == KindApplication {
		// Counter is best-effort; a lost increment never fails the create.
		_ = s.resources.AdjustApplicants(ctx, created.ResourceID, 1)
	}

	return created, nil
}

type TransitionParams struct {
	RequestID string
	ActorID   string
	ActorRole auth.Role
	Target    Status
	Note      *string
}

// Transition moves a request along the lifecycle graph. Permission is
// checked first against the loaded row, reachability second, and the write
// itself is a compare-and-set so concurrent transitions on the same row
// serialize at the storage layer. Resource availability is deliberately left
// untouched; it stays owner-managed.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Request, error) {
	if !validStatus(params.Target) || params.Target == StatusPending {
		return Request{}, fmt.Errorf("%w: %q is not a transition target", ErrInvalidTransition, params.Target)
	}

	req, err := s.repo.Get(ctx, params.RequestID)
	if err != nil {
		return Request{}, err
	}

	if d := Evaluate(params.ActorID, params.ActorRole, req, Action(params.Target)); !d.Allowed {
		return Request{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	if !CanTransition(req.Status, params.Target) {
		return Request{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, params.Target)
	}

	var note *string
	if params.Note != nil {
		if trimmed := strings.TrimSpace(*params.Note); trimmed != "" {
			if len(trimmed) > maxMessageLen {
				return Request{}, ErrMessageTooLong
			}
			note = &trimmed
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, params.RequestID, transitionSources(params.Target), params.Target, note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a race: the row moved or vanished between load and write.
			if _, getErr := s.repo.Get(ctx, params.RequestID); errors.Is(getErr, ErrNotFound) {
				return Request{}, ErrNotFound
			}
			return Request{}, fmt.Errorf("%w: request changed concurrently", ErrInvalidTransition)
		}
		return Request{}, err
	}
	return updated, nil
}

type EditParams struct {
	RequestID        string
	ActorID          string
	Message          *string
	AttachmentURL    *string
	AttachmentFileID *string
	StartDate        *time.Time
	EndDate          *time.Time
}

// Edit lets the requester amend message, attachment and (for rentals) dates
// while the request is still pending. Prices are recomputed from the rate
// snapshotted at creation.
func (s *Service) Edit(ctx context.Context, params EditParams) (Request, error) {
	req, err := s.repo.Get(ctx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	if req.RequesterID != params.ActorID {
		return Request{}, fmt.Errorf("%w: only the requester may edit", ErrForbidden)
	}
	if req.Status != StatusPending {
		return Request{}, ErrNotPending
	}

	upd := PendingUpdate{
		Message:          req.Message,
		AttachmentURL:    req.AttachmentURL,
		AttachmentFileID: req.AttachmentFileID,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		PriceTotalCents:  req.PriceTotalCents,
	}

	if params.Message != nil {
		msg := strings.TrimSpace(*params.Message)
		if len(msg) > maxMessageLen {
			return Request{}, ErrMessageTooLong
		}
		if msg == "" {
			upd.Message = nil
		} else {
			upd.Message = &msg
		}
	}
	if params.AttachmentURL != nil {
		url := strings.TrimSpace(*params.AttachmentURL)
		if url == "" {
			upd.AttachmentURL = nil
		} else {
			upd.AttachmentURL = &url
		}
	}
	if params.AttachmentFileID != nil {
		file := strings.TrimSpace(*params.AttachmentFileID)
		if file == "" {
			upd.AttachmentFileID = nil
		} else {
			upd.AttachmentFileID = &file
		}
	}
	if upd.AttachmentURL != nil && upd.AttachmentFileID != nil {
		return Request{}, ErrAttachmentConflict
	}

	if params.StartDate != nil || params.EndDate != nil {
		if req.Kind != KindRental {
			return Request{}, ErrKindMismatch
		}
		if params.StartDate != nil {
			upd.StartDate = params.StartDate
		}
		if params.EndDate != nil {
			upd.EndDate = params.EndDate
		}
		if upd.StartDate == nil || upd.EndDate == nil {
			return Request{}, ErrInvalidDateRange
		}
		var rate int64
		if req.UnitRateCents != nil {
			rate = *req.UnitRateCents
		}
		total, err := ComputeTotal(*upd.StartDate, *upd.EndDate, rate, s.now())
		if err != nil {
			return Request{}, err
		}
		upd.PriceTotalCents = &total
	}

	updated, err := s.repo.UpdatePending(ctx, params.RequestID, upd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.repo.Get(ctx, params.RequestID); errors.Is(getErr, ErrNotFound) {
				return Request{}, ErrNotFound
			}
			return Request{}, ErrNotPending
		}
		return Request{}, err
	}
	return updated, nil
}

// Get returns a single request after a party read check.
func (s *Service) Get(ctx context.Context, id, actorID string, role auth.Role) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if d := Evaluate(actorID, role, req, ActionRead); !d.Allowed {
		return Request{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return req, nil
}

// Delete removes a request subject to the evaluator's delete rule. Admins
// may delete anything; requesters only while pending, rejected or cancelled.
func (s *Service) Delete(ctx context.Context, id, actorID string, role auth.Role) error {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if d := Evaluate(actorID, role, req, ActionDelete); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	var statuses []Status
	if role != auth.RoleAdmin {
		statuses = []Status{StatusPending, StatusRejected, StatusCancelled}
	}

	deleted, err := s.repo.Delete(ctx, id, statuses)
	if err != nil {
		return err
	}
	if !deleted {
		if _, getErr := s.repo.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: request changed concurrently", ErrForbidden)
	}

	if req.Kind == KindApplication {
		_ = s.resources.AdjustApplicants(ctx, req.ResourceID, -1)
	}
	return nil
}

// ListResult carries a page of summaries, or the in-progress marker when an
// identical read for the same user is already being served.
type ListResult struct {
	Items      []Summary
	Meta       pagination.Meta
	InProgress bool
}

// ListForRequester returns the caller's own requests of one kind, newest
// first. A second concurrent call for the same user and kind short-circuits
// with InProgress set rather than re-running the query.
func (s *Service) ListForRequester(ctx context.Context, userID string, kind Kind, page, limit int) (ListResult, error) {
	key := fmt.Sprintf("requester:%s:%s", kind, userID)
	return s.list(ctx, key, page, limit, func(p pagination.Page) ([]Summary, int, error) {
		return s.repo.ListForRequester(ctx, userID, kind, p)
	})
}

// ListForOwner returns requests targeting the caller's resources.
func (s *Service) ListForOwner(ctx context.Context, userID string, kind Kind, page, limit int) (ListResult, error) {
	key := fmt.Sprintf("owner:%s:%s", kind, userID)
	return s.list(ctx, key, page, limit, func(p pagination.Page) ([]Summary, int, error) {
		return s.repo.ListForOwner(ctx, userID, kind, p)
	})
}

func (s *Service) list(ctx context.Context, key string, page, limit int, run func(pagination.Page) ([]Summary, int, error)) (ListResult, error) {
	p := pagination.Normalize(page, limit)

	done, ok := s.reads.TryBegin(key)
	if !ok {
		return ListResult{InProgress: true}, nil
	}
	defer done()

	items, total, err := run(p)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Meta: pagination.MetaFor(p, total)}, nil
}

func resourceKind(k listing.Kind) Kind {
	if k == listing.KindEquipment {
		return KindRental
	}
	return KindApplication
}
