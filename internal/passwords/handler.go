package passwords

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	"github.com/odyssey-erp/odyssey-accounts/internal/view"
)

const (
	msgChanged       = "Password changed!"
	msgChangeFailed  = "Failed to change password"
	msgResetDone     = "Your password has been changed successfully. You can now sign in."
	msgInstructions  = "If your email address exists in our database, you will receive a password recovery link at your email address in a few minutes."
	msgTokenRequired = "You can't access this page without coming from a password reset email. If you do come from a password reset email, please make sure you used the full URL provided."
)

// Handler serves the password reset and change endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auth      *auth.Service
	responder view.Responder
	metrics   *observability.Metrics
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, authService *auth.Service, responder view.Responder, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, auth: authService, responder: responder, metrics: metrics}
}

// MountRoutes registers password routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(auth.RequireGuest).Get("/new", h.showNew)
	r.Post("/", h.create)
	r.Get("/edit", h.showEdit)
	r.Put("/", h.update)
	r.Patch("/", h.update)
}

type requestForm struct {
	Email string
}

type editForm struct {
	Token string
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	h.responder.Render(w, r, view.Page{Template: "passwords/new.html", Title: "Forgot your password?", Data: requestForm{}})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := requestForm{Email: r.PostFormValue("email")}
	if err := h.service.RequestReset(r.Context(), form.Email); err != nil {
		if fe, ok := shared.AsFieldErrors(err); ok {
			h.responder.Render(w, r, view.Page{
				Status:   http.StatusUnprocessableEntity,
				Template: "passwords/new.html",
				Title:    "Forgot your password?",
				Errors:   fe,
				Data:     form,
			})
			return
		}
		h.logger.Error("request password reset", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.metrics.AuthEvent("password_reset_request", "ok")
	shared.RedirectWithFlash(w, r, auth.LoginPath, shared.FlashInfo, msgInstructions)
}

// showEdit doubles as the change form for signed-in users, who need no token.
func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	if users.CurrentFromContext(r.Context()) != nil {
		h.renderEdit(w, r, http.StatusOK, editForm{}, nil, nil)
		return
	}
	token := r.URL.Query().Get("reset_password_token")
	if token == "" {
		shared.RedirectWithFlash(w, r, auth.LoginPath, shared.FlashDanger, msgTokenRequired)
		return
	}
	h.renderEdit(w, r, http.StatusOK, editForm{Token: token}, nil, nil)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	current := users.CurrentFromContext(r.Context())
	if current == nil {
		h.resetWithToken(w, r)
		return
	}

	updated, err := h.service.Change(r.Context(), current, users.ChangePasswordInput{
		CurrentPassword:      r.PostFormValue("current_password"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	})
	if err != nil {
		fe, ok := shared.AsFieldErrors(err)
		if !ok {
			h.logger.Error("change password", slog.Int64("user_id", current.ID), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.metrics.AuthEvent("password_change", "rejected")
		h.renderEdit(w, r, http.StatusUnprocessableEntity, editForm{}, fe,
			&shared.FlashMessage{Kind: shared.FlashDanger, Message: msgChangeFailed})
		return
	}

	h.auth.BypassSignIn(shared.SessionFromContext(r.Context()), updated)
	h.metrics.AuthEvent("password_change", "ok")
	shared.RedirectWithFlash(w, r, auth.RootPath, shared.FlashSuccess, msgChanged)
}

func (h *Handler) resetWithToken(w http.ResponseWriter, r *http.Request) {
	form := editForm{Token: r.PostFormValue("reset_password_token")}
	_, err := h.service.ResetWithToken(r.Context(), form.Token, r.PostFormValue("password"), r.PostFormValue("password_confirmation"))
	if err != nil {
		var fe shared.FieldErrors
		switch {
		case errors.Is(err, shared.ErrInvalidToken):
			fe = shared.FieldErrors{"reset_password_token": "is invalid"}
		default:
			var ok bool
			if fe, ok = shared.AsFieldErrors(err); !ok {
				h.logger.Error("reset password", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		h.metrics.AuthEvent("password_reset", "rejected")
		h.renderEdit(w, r, http.StatusUnprocessableEntity, form, fe, nil)
		return
	}
	h.metrics.AuthEvent("password_reset", "ok")
	shared.RedirectWithFlash(w, r, auth.LoginPath, shared.FlashSuccess, msgResetDone)
}

func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, status int, form editForm, fe shared.FieldErrors, flash *shared.FlashMessage) {
	title := "Change your password"
	if users.CurrentFromContext(r.Context()) != nil {
		title = "Change password"
	}
	h.responder.Render(w, r, view.Page{
		Status:   status,
		Template: "passwords/edit.html",
		Title:    title,
		Errors:   fe,
		Flash:    flash,
		Data:     form,
	})
}
