// Package registrations serves sign up, profile editing and account removal.
package registrations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	"github.com/odyssey-erp/odyssey-accounts/internal/view"
)

// Handler manages the account lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	users     *users.Service
	auth      *auth.Service
	responder view.Responder
	metrics   *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, usersService *users.Service, authService *auth.Service, responder view.Responder, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, users: usersService, auth: authService, responder: responder, metrics: metrics}
}

// MountRoutes registers registration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireGuest)
		r.Get("/new", h.showNew)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/edit", h.showEdit)
		r.Put("/", h.update)
		r.Patch("/", h.update)
		r.Delete("/", h.destroy)
	})
}

type signUpForm struct {
	Name  string
	Email string
	Job   string
}

type editPage struct {
	Form     signUpForm
	Sessions []auth.SessionRecord
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	h.responder.Render(w, r, view.Page{Template: "registrations/new.html", Title: "Sign up", Data: signUpForm{}})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signUpForm{
		Name:  r.PostFormValue("name"),
		Email: r.PostFormValue("email"),
		Job:   r.PostFormValue("job"),
	}
	user, err := h.users.Register(r.Context(), users.RegisterInput{
		Name:                 form.Name,
		Email:                form.Email,
		Job:                  form.Job,
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: optionalField(r, "password_confirmation"),
	})
	if err != nil {
		fe, ok := shared.AsFieldErrors(err)
		if !ok {
			h.logger.Error("register user", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.metrics.AuthEvent("registration", "rejected")
		h.responder.Render(w, r, view.Page{
			Status:   http.StatusUnprocessableEntity,
			Template: "registrations/new.html",
			Title:    "Sign up",
			Errors:   fe,
			Data:     form,
		})
		return
	}

	if err := h.auth.SignIn(r.Context(), r, shared.SessionFromContext(r.Context()), user); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.metrics.AuthEvent("registration", "ok")
	shared.RedirectWithFlash(w, r, auth.RootPath, shared.FlashSuccess, "Welcome! You have signed up successfully.")
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	current := users.CurrentFromContext(r.Context())
	h.renderEdit(w, r, http.StatusOK, formFromUser(current), nil)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	current := users.CurrentFromContext(r.Context())
	in := users.ProfileInput{
		Name:  optionalField(r, "name"),
		Email: optionalField(r, "email"),
		Job:   optionalField(r, "job"),
	}
	if _, err := h.users.UpdateProfile(r.Context(), current.ID, in); err != nil {
		fe, ok := shared.AsFieldErrors(err)
		if !ok {
			h.logger.Error("update profile", slog.Int64("user_id", current.ID), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		form := formFromUser(current)
		if in.Name != nil {
			form.Name = *in.Name
		}
		if in.Email != nil {
			form.Email = *in.Email
		}
		if in.Job != nil {
			form.Job = *in.Job
		}
		h.renderEdit(w, r, http.StatusUnprocessableEntity, form, fe)
		return
	}
	shared.RedirectWithFlash(w, r, auth.RootPath, shared.FlashSuccess, "Your account has been updated successfully.")
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	current := users.CurrentFromContext(r.Context())
	if err := h.users.Delete(r.Context(), current.ID); err != nil {
		h.logger.Error("delete account", slog.Int64("user_id", current.ID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	// The session row went with the account; only the cookie session remains.
	if err := h.auth.SignOut(r.Context(), shared.SessionFromContext(r.Context())); err != nil {
		h.logger.Warn("sign out deleted account", slog.Any("error", err))
	}
	h.metrics.AuthEvent("account_delete", "ok")
	http.Redirect(w, r, auth.RootPath, http.StatusSeeOther)
}

func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, status int, form signUpForm, fe shared.FieldErrors) {
	page := editPage{Form: form}
	if current := users.CurrentFromContext(r.Context()); current != nil {
		sessions, err := h.auth.Sessions(r.Context(), current.ID)
		if err != nil {
			h.logger.Warn("list sessions", slog.Any("error", err))
		}
		page.Sessions = sessions
	}
	h.responder.Render(w, r, view.Page{
		Status:   status,
		Template: "registrations/edit.html",
		Title:    "Edit account",
		Errors:   fe,
		Data:     page,
	})
}

func formFromUser(u *users.User) signUpForm {
	if u == nil {
		return signUpForm{}
	}
	return signUpForm{Name: u.Name, Email: u.Email, Job: u.Job}
}

// optionalField distinguishes an absent form field from an empty one.
func optionalField(r *http.Request, name string) *string {
	values, ok := r.PostForm[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}
