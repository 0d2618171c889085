package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketflow/auth"
	"marketflow/listing"
	"marketflow/request"
)

// AuthService is the slice of the auth domain the HTTP layer consumes.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

type ListingService interface {
	Create(ctx context.Context, params listing.CreateParams) (listing.Listing, error)
	View(ctx context.Context, id string) (listing.Listing, error)
	List(ctx context.Context, filters listing.Filters) (listing.ListResult, error)
	UpdateStatus(ctx context.Context, id, actorID string, role auth.Role, status listing.Status) (listing.Listing, error)
	Delete(ctx context.Context, id, actorID string, role auth.Role) error
}

type RequestService interface {
	Create(ctx context.Context, params request.CreateParams) (request.Request, error)
	Get(ctx context.Context, id, actorID string, role auth.Role) (request.Request, error)
	Transition(ctx context.Context, params request.TransitionParams) (request.Request, error)
	Edit(ctx context.Context, params request.EditParams) (request.Request, error)
	Delete(ctx context.Context, id, actorID string, role auth.Role) error
	ListForRequester(ctx context.Context, userID string, kind request.Kind, page, limit int) (request.ListResult, error)
	ListForOwner(ctx context.Context, userID string, kind request.Kind, page, limit int) (request.ListResult, error)
}

type Server struct {
	authService    AuthService
	listingService ListingService
	requestService RequestService
	verifier       TokenVerifier
}

func NewServer(authService AuthService, listingService ListingService, requestService RequestService, verifier TokenVerifier) *Server {
	return &Server{
		authService:    authService,
		listingService: listingService,
		requestService: requestService,
		verifier:       verifier,
	}
}

// Router mounts the full API surface. Applications and rentals share one
// request core; each mount point pins the kind so an application endpoint
// never serves a rental row.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)

		api.Group(func(private chi.Router) {
			private.Use(s.requireAuth)

			private.Get("/auth/me", s.handleMe)

			private.Route("/listings", func(lr chi.Router) {
				lr.Post("/", s.handleCreateListing)
				lr.Get("/", s.handleListings)
				lr.Get("/{id}", s.handleListing)
				lr.Put("/{id}/status", s.handleUpdateListingStatus)
				lr.Delete("/{id}", s.handleDeleteListing)
			})

			private.Route("/applications", s.requestRoutes(request.KindApplication))
			private.Route("/rentals", s.requestRoutes(request.KindRental))
		})
	})

	return r
}
