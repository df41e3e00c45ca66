// Package rest exposes the contactbook HTTP API under /api/v1.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	AppName    = "Contactbook API"
	AppVersion = "1.0.0"
)

type UserService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	UpdateProfile(ctx context.Context, actor *models.User, username *string) (*models.User, error)
	UpdateAvatar(ctx context.Context, actor *models.User, contentType string, body []byte) (*models.User, error)
	ChangeRole(ctx context.Context, actor *models.User, targetID int64, role models.Role) (*models.User, error)
}

type ContactService interface {
	Create(ctx context.Context, ownerID int64, in services.ContactInput) (*models.Contact, error)
	Get(ctx context.Context, ownerID, id int64) (*models.Contact, error)
	List(ctx context.Context, ownerID int64, f contacts.ListFilter) ([]*models.Contact, error)
	Update(ctx context.Context, ownerID, id int64, p services.ContactPatch) (*models.Contact, error)
	Delete(ctx context.Context, ownerID, id int64) error
	UpcomingBirthdays(ctx context.Context, ownerID int64) ([]*models.Contact, error)
}

// RouterOptions wires the router. RateLimiter may be nil.
type RouterOptions struct {
	Users          UserService
	Contacts       ContactService
	Resolver       IdentityResolver
	RateLimiter    *RateLimiter
	Logger         logging.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
	// Now defaults to time.Now. Contact ages are computed against it.
	Now func() time.Time
}

type handlers struct {
	users    UserService
	contacts ContactService
	resolver IdentityResolver
	logger   logging.Logger
	now      func() time.Time
}

// CORSOptions allows the configured browser origins.
func CORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func NewRouter(opts RouterOptions) chi.Router {
	h := &handlers{
		users:    opts.Users,
		contacts: opts.Contacts,
		resolver: opts.Resolver,
		logger:   opts.Logger.With("module", "http"),
		now:      opts.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(CORSOptions(opts.CORSOrigins)))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/", h.root)
	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/refresh", h.refresh)
			r.Get("/verify-email", h.verifyEmail)
			r.Post("/resend-verification", h.resendVerification)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/reset-password", h.resetPassword)
			r.Get("/verify-reset-token", h.verifyResetToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/users", func(r chi.Router) {
				r.With(h.requireVerified, opts.RateLimiter.Middleware).Get("/me", h.getMe)
				r.With(h.requireVerified).Patch("/me", h.updateMe)
				r.Post("/me/avatar", h.uploadAvatar)
				r.Patch("/{id}/role", h.changeRole)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Use(h.requireVerified)
				r.Get("/", h.listContacts)
				r.Post("/", h.createContact)
				r.Get("/birthdays", h.upcomingBirthdays)
				r.Get("/{id}", h.getContact)
				r.Put("/{id}", h.updateContact)
				r.Patch("/{id}", h.updateContact)
				r.Delete("/{id}", h.deleteContact)
			})
		})
	})

	return r
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": AppName,
		"version": AppVersion,
		"endpoints": map[string]string{
			"auth":     "/api/v1/auth",
			"users":    "/api/v1/users",
			"contacts": "/api/v1/contacts",
		},
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": AppVersion})
}
