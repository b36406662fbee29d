package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"larpcamp.org/internal/auth"
	"larpcamp.org/internal/campaign"
)

const (
	playerCookie = "player_session"
	staffCookie  = "staff_session"
	keyParam     = "key"
)

type playerHandler func(w http.ResponseWriter, r *http.Request, c campaign.Character)

type staffHandler func(w http.ResponseWriter, r *http.Request, st campaign.Staff)

// player resolves the calling character from ?key= or the player session
// cookie and attaches it as the request principal.
func (a *API) player(next playerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := a.credential(r, playerCookie, auth.RolePlayer)
		c, err := a.campaign.AuthorizeCharacter(r.Context(), key)
		if err != nil {
			handleCampaignError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{
			Key:  c.Key,
			Name: c.ShadowName,
			Role: auth.RolePlayer,
		})
		next(w, r.WithContext(ctx), c)
	})
}

// staff resolves the calling staff member from ?key= or the staff session
// cookie.
func (a *API) staff(next staffHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := a.credential(r, staffCookie, auth.RoleStaff)
		st, err := a.campaign.AuthorizeStaff(r.Context(), key)
		if err != nil {
			handleCampaignError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{
			Key:     st.Key,
			Name:    st.Name,
			Role:    auth.RoleStaff,
			IsAdmin: st.IsAdmin,
		})
		next(w, r.WithContext(ctx), st)
	})
}

// credential prefers an explicit key parameter and falls back to a valid
// session cookie for role. An empty result means no credential was offered.
func (a *API) credential(r *http.Request, cookie string, role auth.Role) string {
	if key := strings.TrimSpace(r.URL.Query().Get(keyParam)); key != "" {
		return key
	}
	claims, err := a.sessionClaims(r, cookie)
	if err != nil || claims.Role != role {
		return ""
	}
	return claims.Subject
}

func (a *API) sessionClaims(r *http.Request, cookie string) (*auth.Claims, error) {
	if a.sessions == nil {
		return nil, auth.ErrInvalidToken
	}
	c, err := r.Cookie(cookie)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	return a.sessions.Parse(c.Value)
}

// setSession issues a fresh session cookie for key.
func (a *API) setSession(w http.ResponseWriter, cookie, key string, role auth.Role) error {
	if a.sessions == nil {
		return auth.ErrMissingSecret
	}
	token, err := a.sessions.Issue(key, role)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
