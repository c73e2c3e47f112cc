package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/internal/audio"
	"github.com/satriahrh/jumpgpt/internal/auth"
	"github.com/satriahrh/jumpgpt/internal/timefmt"
	"github.com/satriahrh/jumpgpt/internal/voice"
	"github.com/satriahrh/jumpgpt/internal/websocket"
	"github.com/satriahrh/jumpgpt/usecase"
)

// ConversationStore is the conversation surface the API exposes
type ConversationStore interface {
	List(ctx context.Context) ([]usecase.ConversationSummary, error)
	Search(ctx context.Context, query string) ([]usecase.ConversationSummary, error)
	Create(ctx context.Context) (*entities.Conversation, error)
	Get(ctx context.Context, id string) (*entities.Conversation, error)
	Delete(ctx context.Context, id string) error
}

// MessagePlayer speaks stored messages on demand
type MessagePlayer interface {
	Toggle(ctx context.Context, conversationID, messageID string) (bool, error)
	Stop()
	State() audio.PlayerState
}

// VoiceSession is the voice coordinator surface the API exposes
type VoiceSession interface {
	websocket.VoiceController
	State() entities.VoiceSessionState
	SetConversation(id string) error
}

// Dependencies wires the handlers
type Dependencies struct {
	Conversations ConversationStore
	Chat          websocket.TextSender
	Playback      MessagePlayer
	Voice         VoiceSession
	Hub           *websocket.Hub
	Issuer        *auth.Issuer
	Formatter     *timefmt.Formatter
	Metrics       http.Handler
	Logger        *zap.Logger
}

type handlers struct {
	Dependencies
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handlers{Dependencies: deps}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "jumpgpt",
		})
	})
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	authenticated := requireClient(deps.Issuer, deps.Logger)

	v1 := e.Group("/api/v1", authenticated)

	// Conversation APIs
	v1.GET("/conversations", h.listConversations)
	v1.POST("/conversations", h.createConversation)
	v1.GET("/conversations/:id", h.getConversation)
	v1.DELETE("/conversations/:id", h.deleteConversation)
	v1.POST("/conversations/:id/messages", h.sendMessage)

	// Playback APIs
	v1.POST("/conversations/:id/messages/:messageId/speak", h.speakMessage)
	v1.GET("/playback", h.playbackState)
	v1.POST("/playback/stop", h.stopPlayback)

	// Voice APIs
	v1.GET("/voice", h.voiceState)
	v1.POST("/voice/start", h.voiceCommand(deps.Voice.Start))
	v1.POST("/voice/stop-recording", h.voiceCommand(deps.Voice.StopRecording))
	v1.POST("/voice/retry", h.voiceCommand(deps.Voice.Retry))
	v1.POST("/voice/stop-playback", h.voiceCommand(deps.Voice.StopPlayback))
	v1.POST("/voice/close", h.voiceCommand(deps.Voice.Close))
	v1.PUT("/voice/conversation", h.setVoiceConversation)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return deps.Hub.HandleWebSocket(c, subject(c))
	}, authenticated)
}

func (h *handlers) listConversations(c echo.Context) error {
	var (
		summaries []usecase.ConversationSummary
		err       error
	)
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		summaries, err = h.Conversations.Search(c.Request().Context(), q)
	} else {
		summaries, err = h.Conversations.List(c.Request().Context())
	}
	if err != nil {
		return h.fail(c, err)
	}

	items := make([]ConversationItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, ConversationItem{
			ID:              s.ID,
			Title:           s.Title,
			LastMessage:     s.LastMessage,
			LastUpdatedAt:   s.LastUpdatedAt,
			LastUpdatedText: h.Formatter.Relative(s.LastUpdatedAt),
			MessageCount:    s.MessageCount,
		})
	}
	return c.JSON(http.StatusOK, ConversationListResponse{Conversations: items})
}

func (h *handlers) createConversation(c echo.Context) error {
	conv, err := h.Conversations.Create(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

func (h *handlers) getConversation(c echo.Context) error {
	conv, err := h.Conversations.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *handlers) deleteConversation(c echo.Context) error {
	if err := h.Conversations.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) sendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "Text is required")
	}

	result, err := h.Chat.Send(c.Request().Context(), usecase.SendRequest{
		ConversationID: c.Param("id"),
		Text:           req.Text,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, SendMessageResponse{
		ConversationID: result.ConversationID,
		UserMessage:    result.UserMessage,
		Reply:          result.Reply,
	})
}

func (h *handlers) speakMessage(c echo.Context) error {
	playing, err := h.Playback.Toggle(c.Request().Context(), c.Param("id"), c.Param("messageId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SpeakResponse{Playing: playing})
}

func (h *handlers) playbackState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Playback.State())
}

func (h *handlers) stopPlayback(c echo.Context) error {
	h.Playback.Stop()
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) voiceState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Voice.State())
}

func (h *handlers) voiceCommand(cmd func() error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := cmd(); err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusAccepted, h.Voice.State())
	}
}

func (h *handlers) setVoiceConversation(c echo.Context) error {
	var req SetConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if req.ConversationID != "" {
		if _, err := h.Conversations.Get(c.Request().Context(), req.ConversationID); err != nil {
			return h.fail(c, err)
		}
	}
	if err := h.Voice.SetConversation(req.ConversationID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.Voice.State())
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

// fail maps domain errors to HTTP statuses
func (h *handlers) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNothingToSpeak):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCompletionFailed), errors.Is(err, domain.ErrSynthesisFailed):
		status = http.StatusBadGateway
	case errors.Is(err, voice.ErrShutdown):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	code := domain.ErrorKind(err)
	if errors.Is(err, voice.ErrShutdown) {
		code = "shutdown"
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}
