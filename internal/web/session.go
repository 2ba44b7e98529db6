package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/spbulk/internal/logging"
)

const sessionIDKey = "id"

// sessionID returns the caller's session id, issuing a new session cookie
// when the request has none. It must run before the response is written.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	sess, err := s.sessions.Get(r, s.cfg.Security.SessionName)
	if err != nil {
		// A cookie signed with an old key; sess is a fresh session.
		logging.FromContext(r.Context()).Debug("session cookie rejected", "error", err)
	}

	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(r, w); err != nil {
		logging.FromContext(r.Context()).Warn("save session", "error", err)
	}
	return id
}
