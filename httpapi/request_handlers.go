package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marketflow/request"
)

const dateLayout = "2006-01-02"

type requestResponse struct {
	ID               string         `json:"id"`
	Kind             request.Kind   `json:"kind"`
	ResourceID       string         `json:"resource_id"`
	RequesterID      string         `json:"requester_id"`
	OwnerID          string         `json:"owner_id"`
	Status           request.Status `json:"status"`
	Message          *string        `json:"message,omitempty"`
	AttachmentURL    *string        `json:"attachment_url,omitempty"`
	AttachmentFileID *string        `json:"attachment_file_id,omitempty"`
	StartDate        *string        `json:"start_date,omitempty"`
	EndDate          *string        `json:"end_date,omitempty"`
	UnitRateCents    *int64         `json:"unit_rate_cents,omitempty"`
	PriceTotalCents  *int64         `json:"price_total_cents,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

type summaryResponse struct {
	requestResponse
	ResourceTitle    string `json:"resource_title"`
	CounterpartName  string `json:"counterpart_name"`
	CounterpartEmail string `json:"counterpart_email"`
}

func toRequestResponse(req request.Request) requestResponse {
	return requestResponse{
		ID:               req.ID,
		Kind:             req.Kind,
		ResourceID:       req.ResourceID,
		RequesterID:      req.RequesterID,
		OwnerID:          req.OwnerID,
		Status:           req.Status,
		Message:          req.Message,
		AttachmentURL:    req.AttachmentURL,
		AttachmentFileID: req.AttachmentFileID,
		StartDate:        formatDate(req.StartDate),
		EndDate:          formatDate(req.EndDate),
		UnitRateCents:    req.UnitRateCents,
		PriceTotalCents:  req.PriceTotalCents,
		CreatedAt:        req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        req.UpdatedAt.Format(time.RFC3339),
	}
}

func toSummaryResponse(s request.Summary) summaryResponse {
	return summaryResponse{
		requestResponse:  toRequestResponse(s.Request),
		ResourceTitle:    s.ResourceTitle,
		CounterpartName:  s.CounterpartName,
		CounterpartEmail: s.CounterpartEmail,
	}
}

// requestRoutes wires the request surface for one kind. The same handlers
// serve /applications and /rentals; the kind pin keeps the two surfaces from
// leaking into each other.
func (s *Server) requestRoutes(kind request.Kind) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/", s.handleCreateRequest(kind))
		r.Get("/mine", s.handleRequestsMine(kind))
		r.Get("/received", s.handleRequestsReceived(kind))
		r.Get("/{id}", s.handleRequest(kind))
		r.Put("/{id}", s.handleUpdateRequest(kind))
		r.Put("/{id}/status", s.handleTransitionRequest(kind))
		r.Delete("/{id}", s.handleDeleteRequest(kind))
	}
}

type createRequestBody struct {
	ResourceID       string `json:"resource_id"`
	Message          string `json:"message"`
	AttachmentURL    string `json:"attachment_url"`
	AttachmentFileID string `json:"attachment_file_id"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
}

func (s *Server) handleCreateRequest(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createRequestBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		start, ok := parseOptionalDate(w, body.StartDate)
		if !ok {
			return
		}
		end, ok := parseOptionalDate(w, body.EndDate)
		if !ok {
			return
		}

		actorID, _ := actorFrom(r.Context())
		created, err := s.requestService.Create(r.Context(), request.CreateParams{
			Kind:             kind,
			ResourceID:       body.ResourceID,
			RequesterID:      actorID,
			Message:          body.Message,
			AttachmentURL:    body.AttachmentURL,
			AttachmentFileID: body.AttachmentFileID,
			StartDate:        start,
			EndDate:          end,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeData(w, http.StatusCreated, toRequestResponse(created))
	}
}

func (s *Server) handleRequestsMine(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := actorFrom(r.Context())
		res, err := s.requestService.ListForRequester(r.Context(), actorID, kind,
			queryInt(r.URL.Query().Get("page")), queryInt(r.URL.Query().Get("limit")))
		writeListResult(w, res, err)
	}
}

func (s *Server) handleRequestsReceived(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := actorFrom(r.Context())
		res, err := s.requestService.ListForOwner(r.Context(), actorID, kind,
			queryInt(r.URL.Query().Get("page")), queryInt(r.URL.Query().Get("limit")))
		writeListResult(w, res, err)
	}
}

// writeListResult renders a request page, or the in-progress marker when an
// identical read is already being served for this user.
func writeListResult(w http.ResponseWriter, res request.ListResult, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	if res.InProgress {
		writeData(w, http.StatusOK, struct {
			InProgress bool `json:"in_progress"`
		}{InProgress: true})
		return
	}

	items := make([]summaryResponse, 0, len(res.Items))
	for _, s := range res.Items {
		items = append(items, toSummaryResponse(s))
	}
	writePage(w, items, res.Meta)
}

func (s *Server) handleRequest(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role := actorFrom(r.Context())
		req, err := s.requestService.Get(r.Context(), chi.URLParam(r, "id"), actorID, role)
		if err != nil {
			respondError(w, err)
			return
		}
		if req.Kind != kind {
			writeError(w, http.StatusNotFound, request.ErrNotFound.Error())
			return
		}
		writeData(w, http.StatusOK, toRequestResponse(req))
	}
}

// requireKind loads the request and hides rows belonging to the other
// surface: a rental addressed through /applications (or vice versa) is
// absent here, not forbidden, and must stay unreachable for mutation too.
func (s *Server) requireKind(w http.ResponseWriter, r *http.Request, id string, kind request.Kind) bool {
	actorID, role := actorFrom(r.Context())
	req, err := s.requestService.Get(r.Context(), id, actorID, role)
	if err != nil {
		respondError(w, err)
		return false
	}
	if req.Kind != kind {
		writeError(w, http.StatusNotFound, request.ErrNotFound.Error())
		return false
	}
	return true
}

type updateRequestBody struct {
	Status           *request.Status `json:"status"`
	Note             *string         `json:"note"`
	Message          *string         `json:"message"`
	AttachmentURL    *string         `json:"attachment_url"`
	AttachmentFileID *string         `json:"attachment_file_id"`
	StartDate        *string         `json:"start_date"`
	EndDate          *string         `json:"end_date"`
}

// handleUpdateRequest serves both halves of PUT: a body carrying status is a
// lifecycle transition, anything else is a pending-request edit by the
// requester.
func (s *Server) handleUpdateRequest(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateRequestBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id := chi.URLParam(r, "id")
		if !s.requireKind(w, r, id, kind) {
			return
		}
		actorID, role := actorFrom(r.Context())

		if body.Status != nil {
			note := body.Note
			if note == nil {
				note = body.Message
			}
			updated, err := s.requestService.Transition(r.Context(), request.TransitionParams{
				RequestID: id,
				ActorID:   actorID,
				ActorRole: role,
				Target:    *body.Status,
				Note:      note,
			})
			if err != nil {
				respondError(w, err)
				return
			}
			writeData(w, http.StatusOK, toRequestResponse(updated))
			return
		}

		params := request.EditParams{
			RequestID:        id,
			ActorID:          actorID,
			Message:          body.Message,
			AttachmentURL:    body.AttachmentURL,
			AttachmentFileID: body.AttachmentFileID,
		}
		if body.StartDate != nil {
			start, ok := parseOptionalDate(w, *body.StartDate)
			if !ok {
				return
			}
			if start == nil {
				writeError(w, http.StatusBadRequest, "start_date must be a YYYY-MM-DD date")
				return
			}
			params.StartDate = start
		}
		if body.EndDate != nil {
			end, ok := parseOptionalDate(w, *body.EndDate)
			if !ok {
				return
			}
			if end == nil {
				writeError(w, http.StatusBadRequest, "end_date must be a YYYY-MM-DD date")
				return
			}
			params.EndDate = end
		}

		updated, err := s.requestService.Edit(r.Context(), params)
		if err != nil {
			respondError(w, err)
			return
		}
		writeData(w, http.StatusOK, toRequestResponse(updated))
	}
}

// handleTransitionRequest is the explicit status endpoint; unlike PUT on the
// resource itself, a missing status here is a client error.
func (s *Server) handleTransitionRequest(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status *request.Status `json:"status"`
			Note   *string         `json:"note"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Status == nil {
			writeError(w, http.StatusBadRequest, "status is required")
			return
		}

		id := chi.URLParam(r, "id")
		if !s.requireKind(w, r, id, kind) {
			return
		}
		actorID, role := actorFrom(r.Context())
		updated, err := s.requestService.Transition(r.Context(), request.TransitionParams{
			RequestID: id,
			ActorID:   actorID,
			ActorRole: role,
			Target:    *body.Status,
			Note:      body.Note,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeData(w, http.StatusOK, toRequestResponse(updated))
	}
}

func (s *Server) handleDeleteRequest(kind request.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !s.requireKind(w, r, id, kind) {
			return
		}
		actorID, role := actorFrom(r.Context())
		if err := s.requestService.Delete(r.Context(), id, actorID, role); err != nil {
			respondError(w, err)
			return
		}
		writeData(w, http.StatusOK, nil)
	}
}

// parseOptionalDate parses a YYYY-MM-DD value; an empty string is nil. On a
// malformed value it writes the 400 itself and reports false.
func parseOptionalDate(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dates must use the YYYY-MM-DD format")
		return nil, false
	}
	return &t, true
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
