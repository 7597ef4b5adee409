package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tekriderz/sessionkit/account"
)

type contextKey int

const userContextKey contextKey = iota

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Message: msg, Type: errType},
	})
}

// decodeBody parses the JSON request body into v, writing a 400 and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "request body is not valid JSON")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}

// authMiddleware validates the bearer token: it must belong to a live
// session and its signature and expiry must check out.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "authentication required")
			return
		}

		s.mu.Lock()
		email, live := s.sessions[token]
		var rec *userRecord
		if live {
			rec = s.users[email]
		}
		s.mu.Unlock()
		if !live || rec == nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "session is not valid")
			return
		}

		_, err := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now)).
			Parse(token, func(*jwt.Token) (any, error) { return s.signKey, nil })
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token_expired", "access token has expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid_token", "session is not valid")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, rec.user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) account.User {
	u, _ := ctx.Value(userContextKey).(account.User)
	return u
}

// mergeProfile folds non-identity fields from a partial update into the
// user's free-form profile blob.
func mergeProfile(u *account.User, partial map[string]any) error {
	profile := map[string]any{}
	if len(u.Profile) > 0 {
		if err := json.Unmarshal(u.Profile, &profile); err != nil {
			profile = map[string]any{}
		}
	}
	for k, v := range partial {
		switch k {
		case "name":
			// Handled by the caller.
		case "email", "role", "id", "verified":
			return fmt.Errorf("field %q cannot be changed through profile update", k)
		default:
			profile[k] = v
		}
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	u.Profile = raw
	return nil
}

type course struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Tutor    string `json:"tutor"`
	Students int    `json:"students"`
}

type courseList struct {
	Courses []course `json:"courses"`
	Total   int      `json:"total"`
}

var sampleCourses = courseList{
	Courses: []course{
		{ID: "crs-001", Title: "Intro to Algebra", Tutor: "Dana Reyes", Students: 42},
		{ID: "crs-002", Title: "World History", Tutor: "Ming Zhao", Students: 31},
		{ID: "crs-003", Title: "Creative Writing", Tutor: "Priya Nair", Students: 18},
	},
	Total: 3,
}
