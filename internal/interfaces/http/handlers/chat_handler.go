package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molecule-search/internal/application/chat"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

// ChatHandler streams answers as server-sent events.
type ChatHandler struct {
	svc    chat.Service
	logger logging.Logger
}

func NewChatHandler(svc chat.Service, log logging.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: orNop(log).Named("chat_handler")}
}

func (h *ChatHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/chat", h.Stream)
	r.POST("/chat/answer", h.Answer)
}

// Stream handles POST /chat. Request errors are answered with JSON before
// the stream starts; anything after that is reported as an error frame
// followed by [DONE].
func (h *ChatHandler) Stream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	SetSSEHeaders(c.Writer)
	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.Status(http.StatusOK)

	stream, err := h.svc.Stream(ctx, req)
	if err != nil {
		h.fail(ctx, sse, err)
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			h.fail(ctx, sse, err)
			return
		}
		if err := sse.WriteEvent(ev); err != nil {
			h.logger.Warn("client went away mid-stream", logging.Err(err))
			return
		}
	}
}

// fail writes the error frame unless the client already disconnected.
func (h *ChatHandler) fail(ctx context.Context, sse *SSEWriter, err error) {
	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		h.logger.Info("chat stream cancelled by client")
		return
	}
	if werr := sse.WriteError(chat.ErrorMessage(err)); werr != nil {
		return
	}
	_ = sse.WriteDone()
}

// Answer handles POST /chat/answer, the non-streaming flow.
func (h *ChatHandler) Answer(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.svc.Answer(c.Request.Context(), req)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) bind(c *gin.Context) (chat.SendMessageRequest, bool) {
	var req chat.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON object")
		return req, false
	}
	if err := req.Validate(); err != nil {
		writeAppError(c, h.logger, err)
		return req, false
	}
	return req, true
}
