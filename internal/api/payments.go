package api

import (
	"net/http"

	"water-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.payments.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getPayment(c *gin.Context) {
	pay, err := h.payments.GetPayment(c.Request.Context(), c.Param("transactionID"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pay)
}

func (h *Handler) cancelPayment(c *gin.Context) {
	pay, err := h.payments.CancelPayment(c.Request.Context(), c.Param("transactionID"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pay)
}

// listPayments is the firm's billing history. Not access-gated: a firm
// whose trial ran out must still be able to pay.
func (h *Handler) listPayments(c *gin.Context) {
	firmID, ok := firmParam(c)
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), firmID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"firm_id":  firmID,
		"payments": payments,
	})
}

func (h *Handler) subscriptionStatus(c *gin.Context) {
	firmID, ok := firmParam(c)
	if !ok {
		return
	}

	status, err := h.subscriptions.Status(c.Request.Context(), firmID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) startTrial(c *gin.Context) {
	firmID, ok := firmParam(c)
	if !ok {
		return
	}

	status, err := h.subscriptions.StartTrial(c.Request.Context(), firmID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, status)
}
