package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketflow/listing"
)

type listingResponse struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Kind           listing.Kind   `json:"kind"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Location       string         `json:"location,omitempty"`
	DailyRateCents *int64         `json:"daily_rate_cents,omitempty"`
	Status         listing.Status `json:"status"`
	Applicants     int            `json:"applicants"`
	Views          int64          `json:"views"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:             l.ID,
		OwnerID:        l.OwnerID,
		Kind:           l.Kind,
		Title:          l.Title,
		Description:    l.Description,
		Location:       l.Location,
		DailyRateCents: l.DailyRateCents,
		Status:         l.Status,
		Applicants:     l.Applicants,
		Views:          l.Views,
		CreatedAt:      l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      l.UpdatedAt.Format(time.RFC3339),
	}
}

type createListingBody struct {
	Kind           listing.Kind `json:"kind"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Location       string       `json:"location"`
	DailyRateCents *int64       `json:"daily_rate_cents"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var body createListingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID, _ := actorFrom(r.Context())
	created, err := s.listingService.Create(r.Context(), listing.CreateParams{
		OwnerID:        actorID,
		Kind:           body.Kind,
		Title:          body.Title,
		Description:    body.Description,
		Location:       body.Location,
		DailyRateCents: body.DailyRateCents,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toListingResponse(created))
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := listing.Filters{
		OwnerID:    q.Get("owner_id"),
		Kind:       listing.Kind(q.Get("kind")),
		Status:     listing.Status(q.Get("status")),
		TitleQuery: q.Get("q"),
		Page:       queryInt(q.Get("page")),
		PageSize:   queryInt(q.Get("limit")),
	}

	res, err := s.listingService.List(r.Context(), filters)
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]listingResponse, 0, len(res.Items))
	for _, l := range res.Items {
		items = append(items, toListingResponse(l))
	}
	writePage(w, items, res.Meta)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.listingService.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleUpdateListingStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status listing.Status `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID, role := actorFrom(r.Context())
	updated, err := s.listingService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), actorID, role, body.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, toListingResponse(updated))
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	actorID, role := actorFrom(r.Context())
	if err := s.listingService.Delete(r.Context(), chi.URLParam(r, "id"), actorID, role); err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
