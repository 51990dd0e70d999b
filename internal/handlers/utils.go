package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jason-s-yu/durak/internal/game"
	"github.com/sirupsen/logrus"
)

// tokenCookie is set by the room endpoints so browsers can open /ws without a query token.
const tokenCookie = "auth_token"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// requestToken prefers ?token= and falls back to the auth cookie.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return extractCookieToken(r.Header.Get("Cookie"), tokenCookie)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

// writeError maps err to a status code. Errors that are not game errors are logged and hidden.
func writeError(w http.ResponseWriter, err error) {
	kind := game.KindOf(err)
	status := statusForKind(kind)
	msg := err.Error()
	if kind == "" {
		logrus.WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "kind": string(kind)})
}

func statusForKind(kind game.ErrorKind) int {
	switch kind {
	case game.KindIllegalIntent:
		return http.StatusBadRequest
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindCapacity:
		return http.StatusConflict
	case game.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
