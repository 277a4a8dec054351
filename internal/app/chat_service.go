package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/logging"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/vectorstore"
)

const (
	defaultHistoryLimit = 10
	sessionTitleRunes   = 50
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

type HistoryCache interface {
	GetHistory(ctx context.Context, tenant string) ([]vectorstore.Turn, bool, error)
	SetHistory(ctx context.Context, tenant string, turns []vectorstore.Turn) error
	Invalidate(ctx context.Context, tenant string) error
	InvalidateAll(ctx context.Context) error
	IsDirty(ctx context.Context, tenant string) (bool, error)
}

type ChatConfig struct {
	HistoryLimit int
	PersistQueue string
}

type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	vectors      vectorstore.Store
	retriever    *Retriever
	completer    Completer
	historyCache HistoryCache
	publisher    Publisher
	cfg          ChatConfig
	logger       *slog.Logger
}

type ChatInput struct {
	UserID    uint
	Username  string
	SessionID uint
	Message   string
}

type ChatResult struct {
	Response  string   `json:"response"`
	Prompt    string   `json:"prompt"`
	SessionID uint     `json:"session_id"`
	Sources   []Source `json:"sources"`
}

// NewChatService wires chat. historyCache and publisher are optional; without a publisher
// messages are written straight to the repository.
func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	vectors vectorstore.Store,
	retriever *Retriever,
	completer Completer,
	historyCache HistoryCache,
	publisher Publisher,
	cfg ChatConfig,
) *ChatService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		vectors:      vectors,
		retriever:    retriever,
		completer:    completer,
		historyCache: historyCache,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logging.NewModuleLogger("chat", "service"),
	}
}

// Chat answers one message from the tenant's context, then remembers the message as a history turn.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Username) == "" {
		return nil, ErrInvalidInput
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.resolveSession(ctx, input.UserID, input.SessionID, message)
	if err != nil {
		return nil, err
	}

	comp, err := s.retriever.Compose(ctx, input.Username, message)
	if err != nil {
		return nil, err
	}
	answer, err := s.completer.Complete(ctx, comp.Messages)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	turn := vectorstore.Turn{
		ID:        uuid.NewString(),
		Tenant:    input.Username,
		Content:   message,
		Embedding: comp.QueryEmbedding,
		CreatedAt: time.Now(),
	}
	if err := s.vectors.AddTurn(ctx, turn, s.cfg.HistoryLimit); err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.Username)

	now := time.Now()
	for _, m := range []model.Message{
		{SessionID: session.ID, UserID: input.UserID, Role: model.RoleUser, Content: message, CreatedAt: now},
		{SessionID: session.ID, UserID: input.UserID, Role: model.RoleAssistant, Content: answer, CreatedAt: now.Add(time.Millisecond)},
	} {
		if err := s.persist(ctx, m); err != nil {
			return nil, err
		}
	}
	if err := s.sessionRepo.Touch(ctx, session.ID); err != nil {
		s.logger.Warn("touch session failed", "session_id", session.ID, "err", err)
	}

	return &ChatResult{
		Response:  answer,
		Prompt:    comp.Prompt,
		SessionID: session.ID,
		Sources:   comp.Sources,
	}, nil
}

func (s *ChatService) resolveSession(ctx context.Context, userID, sessionID uint, message string) (*model.Session, error) {
	if sessionID != 0 {
		session, err := s.sessionRepo.GetByIDAndUserID(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
		return session, nil
	}

	title := truncateRunes(message, sessionTitleRunes)
	if title == "" {
		title = model.DefaultSessionTitle
	}
	session := &model.Session{UserID: userID, Title: title}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) persist(ctx context.Context, msg model.Message) error {
	if s.publisher == nil || s.cfg.PersistQueue == "" {
		return s.messageRepo.Create(ctx, &msg)
	}
	if err := s.publisher.Publish(ctx, s.cfg.PersistQueue, msg); err != nil {
		s.logger.Error("enqueue message failed", "session_id", msg.SessionID, "err", err)
		return ErrMessageEnqueue
	}
	return nil
}

func (s *ChatService) invalidate(ctx context.Context, tenant string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(ctx, tenant); err != nil {
		s.logger.Warn("invalidate history cache failed", "tenant", tenant, "err", err)
	}
}

// History returns the tenant's remembered turns oldest first.
func (s *ChatService) History(ctx context.Context, tenant string) ([]vectorstore.Turn, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrInvalidInput
	}

	if s.historyCache != nil {
		if cached, hit, err := s.historyCache.GetHistory(ctx, tenant); err == nil && hit {
			return cached, nil
		}
	}

	turns, err := s.vectors.ListTurns(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, tenant); err == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, tenant, turns)
		}
	}
	return turns, nil
}

func (s *ChatService) ClearHistory(ctx context.Context, tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return ErrInvalidInput
	}
	if err := s.vectors.DeleteTurns(ctx, tenant); err != nil {
		return err
	}
	s.invalidate(ctx, tenant)
	return nil
}

func (s *ChatService) ClearAllHistory(ctx context.Context) error {
	if err := s.vectors.DeleteAllTurns(ctx); err != nil {
		return err
	}
	if s.historyCache != nil {
		if err := s.historyCache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("invalidate all history caches failed", "err", err)
		}
	}
	return nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(ctx, userID)
}

func (s *ChatService) ListMessages(ctx context.Context, userID, sessionID uint) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.messageRepo.ListBySessionID(ctx, sessionID, 0)
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return s.sessionRepo.DeleteByIDAndUserID(ctx, sessionID, userID)
}

// PurgeTenant forgets the tenant's chat turns.
func (s *ChatService) PurgeTenant(ctx context.Context, tenant string) error {
	return s.ClearHistory(ctx, tenant)
}
