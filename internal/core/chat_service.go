package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/sqldb"
	"github.com/sqltalk/sqltalk/internal/store"
)

// Titler produces a short title for a session from its opening exchange.
type Titler interface {
	GenerateTitleForSession(basis string) (string, error)
}

// ChatService owns the session boundary: it persists transcripts, keeps
// the live connection registry, and runs exactly one pipeline turn per
// submitted question. Handlers never reach past it into pipeline stages.
type ChatService struct {
	dbStore  *store.SQLiteStore
	pipeline *Pipeline
	titler   Titler
	registry *SessionRegistry
}

func NewChatService(db *store.SQLiteStore, pipeline *Pipeline, titler Titler) *ChatService {
	return &ChatService{
		dbStore:  db,
		pipeline: pipeline,
		titler:   titler,
		registry: NewSessionRegistry(),
	}
}

func (s *ChatService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.dbStore.GetUserByExternalID(externalUserID)
}

func (s *ChatService) CreateUser(externalUserID, passwordHash string) (*store.User, error) {
	return s.dbStore.CreateUser(externalUserID, passwordHash)
}

// Connect establishes the database connection for a new session. The
// connection is opened once here and reused by every subsequent turn until
// the session is disconnected.
func (s *ChatService) Connect(ctx context.Context, userID int64, params sqldb.Params, firstQuestion *string) (*store.Session, []store.Message, error) {
	conn, err := sqldb.Connect(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.dbStore.CreateSession(userID, params.Driver, params.Database)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create session in DB: %w", err)
	}
	s.registry.Add(sess.ID, conn)

	var messages []store.Message
	if firstQuestion != nil && strings.TrimSpace(*firstQuestion) != "" {
		if _, err := s.Ask(ctx, sess.ID, userID, *firstQuestion); err != nil {
			log.Printf("Failed to answer first question for new session %s: %v", sess.ID, err)
		}
		messages, err = s.dbStore.GetMessagesBySessionID(sess.ID, 100, 0)
		if err != nil {
			log.Printf("Failed to load messages for new session %s: %v", sess.ID, err)
			messages = nil
		}
	}

	return sess, messages, nil
}

func (s *ChatService) GetSessions(userID int64) ([]store.Session, error) {
	return s.dbStore.GetSessionsByUserID(userID)
}

func (s *ChatService) GetSessionDetails(sessionID string, userID int64) (*store.Session, []store.Message, error) {
	sess, err := s.dbStore.GetSessionByID(sessionID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, nil, nil // Not found
	}

	messages, err := s.dbStore.GetMessagesBySessionID(sessionID, 100, 0) // Get up to 100 messages
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for session: %w", err)
	}
	return sess, messages, nil
}

// Ask runs one pipeline turn for the question and returns the stored
// assistant message. Every turn ends in text for the user: pipeline
// failures are classified into a user-facing message here, with the full
// detail kept in the server log.
func (s *ChatService) Ask(ctx context.Context, sessionID string, userID int64, question string) (*store.Message, error) {
	sess, err := s.dbStore.GetSessionByID(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session not found")
	}

	history, err := s.loadHistory(sessionID)
	if err != nil {
		log.Printf("Error loading history for session %s: %v. Proceeding without history.", sessionID, err)
		history = nil
	}

	userMsg := store.Message{
		SessionID: sessionID,
		Sender:    store.SenderUser,
		Content:   question,
	}
	if err := s.dbStore.CreateMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	answer := s.runTurn(ctx, sessionID, question, history)

	assistantMsg := store.Message{
		SessionID: sessionID,
		Sender:    store.SenderAssistant,
		Content:   answer,
	}
	if err := s.dbStore.CreateMessage(&assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if sess.Title == nil || *sess.Title == "" {
		go s.generateAndSaveSessionTitle(sessionID, userID, question)
	}

	return &assistantMsg, nil
}

// runTurn executes one pipeline turn under the session's lock and returns
// the text for the user, classified from the failure category if the turn
// did not survive.
func (s *ChatService) runTurn(ctx context.Context, sessionID, question string, history []Turn) string {
	live := s.registry.Get(sessionID)
	if live == nil {
		err := &sqldb.ConnectError{Err: fmt.Errorf("no live connection for session %s", sessionID)}
		log.Printf("Turn failed for session %s: %v", sessionID, err)
		return ClassifyError(err)
	}

	live.mu.Lock()
	defer live.mu.Unlock()

	answer, attempt, err := s.pipeline.Answer(ctx, live.conn, question, history)
	if attempt != nil {
		live.appendAttempt(*attempt)
	}
	if err != nil {
		log.Printf("Turn failed for session %s: %v", sessionID, err)
		return ClassifyError(err)
	}
	return answer
}

func (s *ChatService) loadHistory(sessionID string) ([]Turn, error) {
	limit := config.AppConfig.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	messages, err := s.dbStore.GetLastNMessagesBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		role := RoleUser
		if msg.Sender == store.SenderAssistant {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: msg.Content})
	}
	return history, nil
}

// Attempts exposes the session's attempt log, read-only, for display and
// debugging.
func (s *ChatService) Attempts(sessionID string, userID int64) ([]Attempt, error) {
	sess, err := s.dbStore.GetSessionByID(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session not found")
	}

	live := s.registry.Get(sessionID)
	if live == nil {
		return []Attempt{}, nil // Disconnected sessions have no live log
	}
	return live.Attempts(), nil
}

// Disconnect closes the session's database connection and discards its
// live state. The transcript remains in the store.
func (s *ChatService) Disconnect(sessionID string, userID int64) error {
	sess, err := s.dbStore.GetSessionByID(sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to verify session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session not found")
	}

	live := s.registry.Remove(sessionID)
	if live == nil {
		return nil // Already disconnected
	}
	if err := live.conn.Close(); err != nil {
		log.Printf("Error closing connection for session %s: %v", sessionID, err)
	}
	return nil
}

func (s *ChatService) generateAndSaveSessionTitle(sessionID string, userID int64, basisContent string) {
	if s.titler == nil {
		return
	}
	log.Printf("Attempting to generate title for session %s", sessionID)
	title, err := s.titler.GenerateTitleForSession(basisContent)
	if err != nil {
		log.Printf("Failed to generate title for session %s: %v", sessionID, err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")

	err = s.dbStore.UpdateSessionTitle(sessionID, userID, title)
	if err != nil {
		log.Printf("Failed to save generated title '%s' for session %s: %v", title, sessionID, err)
	} else {
		log.Printf("Successfully generated and saved title '%s' for session %s", title, sessionID)
	}
}

func (s *ChatService) SetMessageFeedback(messageID string, userID int64, negative bool) error {
	// Should verify that the message belongs to the user's session
	return s.dbStore.UpdateMessageFeedback(messageID, negative)
}
