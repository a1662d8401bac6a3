package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ripple/internal/auth"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 1 && parts[0] == "user" {
		s.handleUser(w, r, parts)
		return
	}
	if len(parts) >= 1 && parts[0] == "post" {
		s.handlePost(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "register" {
		var body RegisterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Register(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   session.Token,
			"user_id": session.UserID,
		})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "login" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"isMatch": true,
			"user":    user,
			"token":   session.Token,
		})
		return
	}

	// GET /user/:email
	if r.Method == http.MethodGet && len(parts) == 2 {
		user, err := s.service.UserByEmail(r.Context(), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "newPost" {
		var body struct {
			UserID   int64  `json:"user_id"`
			PostBody string `json:"postBody"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if _, err := s.service.CreatePost(r.Context(), body.UserID, body.PostBody); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"Posted": true})
		return
	}

	// GET /post/posts — the global feed
	if r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "posts" {
		posts, err := s.service.GlobalFeed(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, posts)
		return
	}

	// GET /post/allPosts/:id — a user's private feed
	if r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "allPosts" {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		targetID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		posts, err := s.service.FeedForUser(r.Context(), targetID, identity)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, posts)
		return
	}

	// PUT /post/edit-post/:postId
	if r.Method == http.MethodPut && len(parts) == 3 && parts[1] == "edit-post" {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		postID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		var body struct {
			EditedPostBody string `json:"editedPostBody"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.EditPost(r.Context(), postID, identity, body.EditedPostBody); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Post content updated successfully"})
		return
	}

	// PUT /post/edit-comment/:commentId
	if r.Method == http.MethodPut && len(parts) == 3 && parts[1] == "edit-comment" {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		commentID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		var body struct {
			EditedCommentBody string `json:"editedCommentBody"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.EditComment(r.Context(), commentID, identity, body.EditedCommentBody); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Comment content updated successfully"})
		return
	}

	// DELETE /post/delete-comment/:commentID
	if r.Method == http.MethodDelete && len(parts) == 3 && parts[1] == "delete-comment" {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		commentID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		if err := s.service.DeleteComment(r.Context(), commentID, identity); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Comment deleted successfully"})
		return
	}

	// POST /post/:postId/like — toggle
	if r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "like" {
		postID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		userID, ok := s.requireUserIDHeader(w, r)
		if !ok {
			return
		}
		state, err := s.service.ToggleLike(r.Context(), postID, userID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		message := "Post liked successfully"
		if !state.Liked {
			message = "Post unliked successfully"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    message,
			"liked":      state.Liked,
			"like_count": state.LikeCount,
		})
		return
	}

	// GET /post/:user_id/likes
	if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "likes" {
		userID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		ids, err := s.service.LikedPostIDs(r.Context(), userID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ids)
		return
	}

	// POST /post/:postId/comment
	if r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "comment" {
		postID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		userID, ok := s.requireUserIDHeader(w, r)
		if !ok {
			return
		}
		var body struct {
			CommentContent string `json:"commentContent"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if _, err := s.service.AddComment(r.Context(), postID, userID, body.CommentContent); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Comment posted successfully"})
		return
	}

	// GET /post/:postId/comments
	if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "comments" {
		postID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		comments, err := s.service.Comments(r.Context(), postID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, comments)
		return
	}

	// DELETE /post/:postId
	if r.Method == http.MethodDelete && len(parts) == 2 {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		postID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		if err := s.service.DeletePost(r.Context(), postID, identity); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Post deleted successfully"})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// requireIdentity runs the authorization guard against the request's bearer
// token and writes the 401 itself when the identity cannot be established.
func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.service.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil)
		return auth.Identity{}, false
	}
	return identity, true
}

// requireUserIDHeader normalizes the user_id header to the canonical int64
// identity form before it can be compared to anything.
func (s *HTTPServer) requireUserIDHeader(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("user_id"))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil)
		return 0, false
	}
	return userID, true
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, user_id")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "PERSISTENCE_ERROR", "Store unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
