package api

import (
	"net/http"

	"water-service/internal/gateway/click"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Provider callbacks are always answered with HTTP 200; failures travel in
// the provider's own envelope.

func (h *Handler) paymeWebhook(c *gin.Context) {
	// an unreadable body is answered as a JSON-RPC parse error
	body, _ := c.GetRawData()

	resp := h.payme.Handle(c.Request.Context(), c.GetHeader("Authorization"), body)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) clickPrepare(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, badClickRequest(err))
		return
	}

	call, err := click.ParsePrepare(body)
	if err != nil {
		h.logger.Info("Malformed Click prepare", zap.Error(err))
		c.JSON(http.StatusOK, badClickRequest(err))
		return
	}

	c.JSON(http.StatusOK, h.click.Handle(c.Request.Context(), call))
}

func (h *Handler) clickComplete(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, badClickRequest(err))
		return
	}

	call, err := click.ParseComplete(body)
	if err != nil {
		h.logger.Info("Malformed Click complete", zap.Error(err))
		c.JSON(http.StatusOK, badClickRequest(err))
		return
	}

	c.JSON(http.StatusOK, h.click.Handle(c.Request.Context(), call))
}

func badClickRequest(err error) *click.Response {
	return &click.Response{
		Error:     click.CodeBadRequest,
		ErrorNote: "Error in request from click: " + err.Error(),
	}
}
