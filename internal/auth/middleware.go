package auth

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

const (
	msgSignInRequired = "You need to sign in or sign up before continuing."
	msgAlreadySigned  = "You are already signed in."
)

// LoadUser resolves the signed-in user for every request and stores it in the
// request context. It must run after the session middleware.
func LoadUser(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			user, err := service.CurrentUser(r.Context(), sess)
			if err != nil {
				logger.Error("resolve current user", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(users.ContextWithCurrent(r.Context(), user)))
		})
	}
}

// RequireUser sends anonymous requesters to the sign-in form.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if users.CurrentFromContext(r.Context()) == nil {
			shared.RedirectWithFlash(w, r, LoginPath, shared.FlashDanger, msgSignInRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireGuest sends signed-in requesters back to the root page.
func RequireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if users.CurrentFromContext(r.Context()) != nil {
			shared.RedirectWithFlash(w, r, RootPath, shared.FlashInfo, msgAlreadySigned)
			return
		}
		next.ServeHTTP(w, r)
	})
}
