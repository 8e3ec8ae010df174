package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// SignIn sends a signed-in user straight to the app and everyone else to
// the chosen OAuth provider, which comes back to ?redirect=.
func SignIn(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := auth.TokenFromRequest(r); token != "" {
			if _, err := d.Sessions.CurrentUser(r.Context(), token); err == nil {
				http.Redirect(w, r, d.SignedInURL, http.StatusFound)
				return
			}
		}

		q := r.URL.Query()
		target, err := auth.SignInURL(d.OAuthProviders, q.Get("provider"), q.Get("redirect"))
		if errors.Is(err, auth.ErrUnknownProvider) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			d.Logger.Error("failed to build sign-in url", logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// SignOut revokes the caller's session, which closes its open tabs, and
// sends the browser to the signed-out entry point. Without a valid session
// it only clears the cookie.
func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token != "" {
			_, err := d.Sessions.SignOut(r.Context(), token)
			switch {
			case err == nil, errors.Is(err, auth.ErrNoSession):
			default:
				d.Logger.Error("failed to sign out", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		auth.ClearCookie(w)
		http.Redirect(w, r, d.SignedOutURL, http.StatusFound)
	}
}
