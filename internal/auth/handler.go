package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/view"
)

// Handler wires HTTP endpoints for sign-in and sign-out.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	responder view.Responder
	metrics   *observability.Metrics
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, responder view.Responder, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, responder: responder, metrics: metrics}
}

// MountRoutes registers session routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(RequireGuest).Get("/new", h.showLogin)
	r.With(RequireGuest).Post("/", h.handleLogin)
	r.Delete("/", h.handleLogout)
}

type loginForm struct {
	Email string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.responder.Render(w, r, view.Page{Template: "sessions/new.html", Title: "Sign in", Data: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{Email: r.PostFormValue("email")}

	user, err := h.service.Authenticate(r.Context(), form.Email, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.metrics.AuthEvent("login", "rejected")
		h.responder.Render(w, r, view.Page{
			Status:   http.StatusUnprocessableEntity,
			Template: "sessions/new.html",
			Title:    "Sign in",
			Flash:    &shared.FlashMessage{Kind: shared.FlashDanger, Message: "Invalid email or password."},
			Data:     form,
		})
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if err := h.service.SignIn(r.Context(), r, sess, user); err != nil {
		// The session itself is already bound; only the audit row is missing.
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.metrics.AuthEvent("login", "ok")
	shared.RedirectWithFlash(w, r, RootPath, shared.FlashSuccess, "Signed in successfully.")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), shared.SessionFromContext(r.Context())); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
	}
	h.metrics.AuthEvent("logout", "ok")
	http.Redirect(w, r, RootPath, http.StatusSeeOther)
}
