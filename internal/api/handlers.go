package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sqltalk/sqltalk/internal/auth"
	"github.com/sqltalk/sqltalk/internal/core"
	"github.com/sqltalk/sqltalk/internal/sqldb"
	"github.com/sqltalk/sqltalk/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
}

func NewAPIHandler(cs *core.ChatService) *APIHandler {
	return &APIHandler{chatService: cs}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByExternalID(externalUserID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", externalUserID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.chatService.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type CreateSessionRequest struct {
	Driver        string  `json:"driver"`
	Host          string  `json:"host"`
	Port          string  `json:"port"`
	User          string  `json:"user"`
	Password      string  `json:"password"`
	Database      string  `json:"database"`
	FirstQuestion *string `json:"first_question,omitempty"`
}

type CreateSessionResponse struct {
	*store.Session
	Messages []store.Message `json:"messages,omitempty"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Driver == "" || req.Database == "" {
		http.Error(w, "Driver and database are required", http.StatusBadRequest)
		return
	}

	params := sqldb.Params{
		Driver:   req.Driver,
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Database: req.Database,
	}

	sess, messages, err := h.chatService.Connect(r.Context(), userID, params, req.FirstQuestion)
	if err != nil {
		// Connection settings and credentials stay out of the response.
		log.Printf("Error connecting session for user %d: %v", userID, err)
		http.Error(w, core.ClassifyError(err), http.StatusBadGateway)
		return
	}

	resp := CreateSessionResponse{
		Session:  sess,
		Messages: messages,
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	sessions, err := h.chatService.GetSessions(userID)
	if err != nil {
		log.Printf("Error listing sessions for user %d: %v", userID, err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(sessions)
}

type GetSessionDetailsResponse struct {
	*store.Session
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetSessionDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	sess, messages, err := h.chatService.GetSessionDetails(sessionID, userID)
	if err != nil {
		log.Printf("Error getting session details for user %d, session %s: %v", userID, sessionID, err)
		http.Error(w, "Failed to get session details", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	resp := GetSessionDetailsResponse{
		Session:  sess,
		Messages: messages,
	}
	json.NewEncoder(w).Encode(resp)
}

type AskRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	answerMessage, err := h.chatService.Ask(r.Context(), sessionID, userID, req.Question)
	if err != nil {
		if err.Error() == "session not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error answering question for user %d, session %s: %v", userID, sessionID, err)
			http.Error(w, "Failed to answer question", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(answerMessage)
}

func (h *APIHandler) AttemptLogHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	attempts, err := h.chatService.Attempts(sessionID, userID)
	if err != nil {
		if err.Error() == "session not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error getting attempt log for user %d, session %s: %v", userID, sessionID, err)
			http.Error(w, "Failed to get attempt log", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(attempts)
}

func (h *APIHandler) DisconnectSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	sessionID := chi.URLParam(r, "sessionID")

	err := h.chatService.Disconnect(sessionID, userID)
	if err != nil {
		if err.Error() == "session not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error disconnecting session %s for user %d: %v", sessionID, userID, err)
			http.Error(w, "Failed to disconnect session", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.chatService.SetMessageFeedback(messageID, userID, req.Negative)
	if err != nil {
		if err.Error() == "message not found, feedback not updated" {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error setting feedback for message %s by user %d: %v", messageID, userID, err)
			http.Error(w, "Failed to set feedback", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
