package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/logging"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	events      *logging.EventLog
}

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID uint   `json:"session_id"`
}

func NewChatHandler(chatService *app.ChatService, events *logging.EventLog) *ChatHandler {
	return &ChatHandler{chatService: chatService, events: events}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in context")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	username := middleware.Username(c)
	result, err := h.chatService.Chat(c.Request.Context(), app.ChatInput{
		UserID:    userID,
		Username:  username,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		writeError(c, err, "chat failed")
		return
	}
	h.events.Record(username, "user_chat", "message="+req.Message)
	response.OK(c, result)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in context")
		return
	}

	sessions, err := h.chatService.ListSessions(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in context")
		return
	}
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err, "list messages failed")
		return
	}
	response.OK(c, messages)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in context")
		return
	}
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		writeError(c, err, "delete session failed")
		return
	}
	h.events.Record(middleware.Username(c), "delete_session", "session_id="+c.Param("id"))
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func parseSessionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return 0, false
	}
	return uint(id), true
}
