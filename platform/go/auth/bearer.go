package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
)

// BearerToken returns the token of an "Authorization: Bearer" header. Other schemes and empty
// tokens report false.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, challenge, detail string) {
	w.Header().Set("WWW-Authenticate", challenge)
	httpapi.WriteProblem(w, httpapi.NewProblem("Unauthorized", detail, httpapi.ProblemTypeAuth, http.StatusUnauthorized, nil))
}

func invalidToken(w http.ResponseWriter, description string) {
	unauthorized(w, fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description=%q`, description), "invalid bearer token")
}

func forbidden(w http.ResponseWriter, role string) {
	httpapi.WriteProblem(w, httpapi.NewProblem("Forbidden", fmt.Sprintf("requires the %s role", role), httpapi.ProblemTypeForbidden, http.StatusForbidden, nil))
}
