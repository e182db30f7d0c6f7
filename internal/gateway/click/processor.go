package click

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strconv"

	"water-service/internal/gateway"
	"water-service/internal/models"
	"water-service/internal/util"

	"go.uber.org/zap"
)

// Processor answers Click prepare/complete callbacks
type Processor struct {
	settlement gateway.Settlement
	secret     string
	serviceID  int64
	logger     *zap.Logger
}

// NewProcessor creates a processor verifying signatures with secret
func NewProcessor(settlement gateway.Settlement, secret string, serviceID int64) *Processor {
	return &Processor{
		settlement: settlement,
		secret:     secret,
		serviceID:  serviceID,
		logger:     util.GetLogger(),
	}
}

// Verify checks the callback signature and service id
func (p *Processor) Verify(call Call) bool {
	if p.secret == "" {
		return false
	}
	if p.serviceID != 0 && call.params().ServiceID != p.serviceID {
		return false
	}
	want := Sign(call, p.secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(call.params().SignString)) == 1
}

// Handle executes one callback. The response is always sent with HTTP 200.
func (p *Processor) Handle(ctx context.Context, call Call) *Response {
	ctx, span := util.StartSpan(ctx, "Click.Handle")
	defer span.End()

	var (
		resp   *Response
		method string
	)
	switch c := call.(type) {
	case *Prepare:
		method = "prepare"
		resp = p.prepare(ctx, c)
	case *Complete:
		method = "complete"
		resp = p.complete(ctx, c)
	}

	if resp.Error != CodeSuccess {
		p.logger.Info("Click call rejected",
			zap.String("method", method),
			zap.String("merchant_trans_id", call.params().MerchantTransID),
			zap.Int("code", resp.Error))
	}
	util.PaymentWebhooksTotal.WithLabelValues("click", method, strconv.Itoa(resp.Error)).Inc()
	return resp
}

func (p *Processor) prepare(ctx context.Context, c *Prepare) *Response {
	resp := &Response{ClickTransID: c.ClickTransID, MerchantTransID: c.MerchantTransID}

	if !p.Verify(c) {
		return fail(resp, CodeSignFailed, "SIGN CHECK FAILED!")
	}
	if c.Action != ActionPrepare {
		return fail(resp, CodeActionNotFound, "Action not found")
	}

	pay, code := p.lookup(ctx, &c.Params)
	if code != CodeSuccess {
		return fail(resp, code, noteFor(code))
	}
	if code := p.checkAmount(c.Amount, pay); code != CodeSuccess {
		return fail(resp, code, noteFor(code))
	}
	switch pay.Status {
	case models.PaymentStatusCompleted:
		return fail(resp, CodeAlreadyPaid, "Already paid")
	case models.PaymentStatusCancelled, models.PaymentStatusFailed:
		return fail(resp, CodeCancelled, "Transaction cancelled")
	}

	pay, err := p.settlement.BeginPayment(ctx, pay.TransactionID, formatID(c.ClickTransID))
	if errors.Is(err, models.ErrConflict) {
		return fail(resp, CodeBadRequest, "Transaction is bound to another payment session")
	}
	if err != nil {
		p.logger.Error("Click prepare failed", zap.Error(err))
		return fail(resp, CodeUpdateFailed, "Failed to update payment")
	}

	resp.MerchantPrepareID = pay.ID
	resp.ErrorNote = "Success"
	return resp
}

func (p *Processor) complete(ctx context.Context, c *Complete) *Response {
	resp := &Response{ClickTransID: c.ClickTransID, MerchantTransID: c.MerchantTransID}

	if !p.Verify(c) {
		return fail(resp, CodeSignFailed, "SIGN CHECK FAILED!")
	}
	if c.Action != ActionComplete {
		return fail(resp, CodeActionNotFound, "Action not found")
	}

	pay, code := p.lookup(ctx, &c.Params)
	if code != CodeSuccess {
		return fail(resp, code, noteFor(code))
	}
	if c.MerchantPrepareID != pay.ID {
		return fail(resp, CodeTransactionNotFound, "Transaction does not exist")
	}
	// complete is only valid for the session bound by prepare
	if pay.ExternalID == nil || *pay.ExternalID != formatID(c.ClickTransID) {
		return fail(resp, CodeTransactionNotFound, "Transaction does not exist")
	}
	if code := p.checkAmount(c.Amount, pay); code != CodeSuccess {
		return fail(resp, code, noteFor(code))
	}

	if c.Error < 0 {
		if pay.Status == models.PaymentStatusCompleted {
			return fail(resp, CodeAlreadyPaid, "Already paid")
		}
		note := c.ErrorNote
		if note == "" {
			note = "click error " + strconv.Itoa(c.Error)
		}
		if _, err := p.settlement.FailPayment(ctx, pay.TransactionID, note); err != nil && !errors.Is(err, models.ErrConflict) {
			p.logger.Error("Click fail transition failed", zap.Error(err))
			return fail(resp, CodeUpdateFailed, "Failed to update payment")
		}
		return fail(resp, CodeCancelled, "Transaction cancelled")
	}

	pay, err := p.settlement.CompletePayment(ctx, pay.TransactionID)
	if errors.Is(err, models.ErrConflict) {
		return fail(resp, CodeCancelled, "Transaction cancelled")
	}
	if err != nil {
		p.logger.Error("Click complete failed", zap.Error(err))
		return fail(resp, CodeUpdateFailed, "Failed to update payment")
	}

	resp.MerchantPrepareID = pay.ID
	resp.MerchantConfirmID = pay.ID
	resp.ErrorNote = "Success"
	return resp
}

func (p *Processor) lookup(ctx context.Context, params *Params) (*models.Payment, int) {
	pay, err := p.settlement.GetPaymentByTransactionID(ctx, params.MerchantTransID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, CodeOrderNotFound
	}
	if err != nil {
		p.logger.Error("Click payment lookup failed", zap.Error(err))
		return nil, CodeUpdateFailed
	}
	if pay.Provider != models.ProviderClick {
		return nil, CodeOrderNotFound
	}
	return pay, CodeSuccess
}

func (p *Processor) checkAmount(amount json.Number, pay *models.Payment) int {
	minor, err := ToMinorUnits(amount)
	if err != nil || gateway.CheckAmount(pay, minor) != nil {
		return CodeInvalidAmount
	}
	return CodeSuccess
}

func fail(resp *Response, code int, note string) *Response {
	resp.Error = code
	resp.ErrorNote = note
	return resp
}

func noteFor(code int) string {
	switch code {
	case CodeOrderNotFound:
		return "Order not found"
	case CodeInvalidAmount:
		return "Incorrect parameter amount"
	case CodeUpdateFailed:
		return "Failed to update payment"
	}
	return "Error"
}
