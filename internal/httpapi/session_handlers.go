package httpapi

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"larpcamp.org/internal/auth"
	"larpcamp.org/internal/obs"
)

// setup shows the bootstrap admin link until the first staff login.
func (a *API) setup(w http.ResponseWriter, r *http.Request) {
	key, err := a.campaign.SetupKey(r.Context())
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if key != "" {
		_, _ = w.Write([]byte("Welcome! You can sign as admin at /staff-login?key=" + key))
		return
	}
	_, _ = w.Write([]byte("This instance is already set up."))
}

// playerLogin turns a one-off ?key= link into a session cookie.
func (a *API) playerLogin(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get(keyParam))
	if key == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	c, err := a.campaign.AuthorizeCharacter(r.Context(), key)
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	if err := a.setSession(w, playerCookie, c.Key, auth.RolePlayer); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// staffLogin is playerLogin for staff. The first login of any staff member
// retires the setup link.
func (a *API) staffLogin(w http.ResponseWriter, r *http.Request) {
	st, err := a.campaign.AuthorizeStaff(r.Context(), r.URL.Query().Get(keyParam))
	if err != nil {
		handleCampaignError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Key: st.Key, Name: st.Name, Role: auth.RoleStaff, IsAdmin: st.IsAdmin})
	if err := a.campaign.CompleteStaffLogin(ctx, st); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	if err := a.setSession(w, staffCookie, st.Key, auth.RoleStaff); err != nil {
		handleCampaignError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// index serves the web client shell and refreshes any valid session so a
// returning player never has to log in again.
func (a *API) index(w http.ResponseWriter, r *http.Request) {
	for _, s := range []struct {
		cookie string
		role   auth.Role
	}{{staffCookie, auth.RoleStaff}, {playerCookie, auth.RolePlayer}} {
		claims, err := a.sessionClaims(r, s.cookie)
		if err != nil || claims.Role != s.role {
			continue
		}
		if err := a.setSession(w, s.cookie, claims.Subject, s.role); err != nil {
			obs.Logger().Warn().Err(err).Str("cookie", s.cookie).Msg("session refresh failed")
		}
	}
	if a.staticDir == "" {
		writeError(w, r, http.StatusNotFound, "web client not installed")
		return
	}
	path := filepath.Join(a.staticDir, "index.html")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		writeError(w, r, http.StatusNotFound, "web client not installed")
		return
	}
	http.ServeFile(w, r, path)
}

// static serves the web client's assets.
func (a *API) static() http.Handler {
	if a.staticDir == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusNotFound, "resource not found")
		})
	}
	return http.FileServer(http.Dir(a.staticDir))
}
