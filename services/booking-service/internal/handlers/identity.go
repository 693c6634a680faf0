package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/agendei/libs/auth"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

var errUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the caller of a request. Without a verifier the identity headers
// set by the gateway are the only source. With one, a bearer token is required unless
// trustHeaders also admits the gateway headers.
type Authenticator struct {
	verifier     *auth.Verifier
	trustHeaders bool
}

func NewAuthenticator(verifier *auth.Verifier, trustHeaders bool) *Authenticator {
	return &Authenticator{verifier: verifier, trustHeaders: trustHeaders}
}

func (a *Authenticator) Principal(r *http.Request) (model.Principal, error) {
	if a == nil || a.verifier == nil {
		return headerPrincipal(r)
	}
	if token, ok := bearerToken(r); ok {
		claims, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			return model.Principal{}, errUnauthenticated
		}
		return principal(claims.Sub, claims.Name, claims.Role)
	}
	if a.trustHeaders {
		return headerPrincipal(r)
	}
	return model.Principal{}, errUnauthenticated
}

func headerPrincipal(r *http.Request) (model.Principal, error) {
	return principal(r.Header.Get("X-User-Id"), r.Header.Get("X-User-Name"), r.Header.Get("X-Role"))
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func principal(userID, name, role string) (model.Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Principal{}, errUnauthenticated
	}
	return model.Principal{
		UserID: userID,
		Name:   strings.TrimSpace(name),
		Role:   model.Role(strings.ToLower(strings.TrimSpace(role))),
	}, nil
}
