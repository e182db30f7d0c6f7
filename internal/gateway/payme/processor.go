package payme

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"water-service/internal/gateway"
	"water-service/internal/models"
	"water-service/internal/util"

	"go.uber.org/zap"
)

const login = "Paycom"

// Processor answers Payme merchant API calls
type Processor struct {
	settlement gateway.Settlement
	key        string
	logger     *zap.Logger
}

// NewProcessor creates a processor authenticating calls with the merchant key
func NewProcessor(settlement gateway.Settlement, merchantKey string) *Processor {
	return &Processor{
		settlement: settlement,
		key:        merchantKey,
		logger:     util.GetLogger(),
	}
}

// Authorized checks the Basic credentials Payme sends with every call
func (p *Processor) Authorized(header string) bool {
	const prefix = "Basic "
	if p.key == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok || user != login {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(p.key)) == 1
}

// Handle authenticates, parses and executes one webhook call. The returned
// response is always sent with HTTP 200.
func (p *Processor) Handle(ctx context.Context, authHeader string, body []byte) *Response {
	ctx, span := util.StartSpan(ctx, "Payme.Handle")
	defer span.End()

	if !p.Authorized(authHeader) {
		util.PaymentWebhooksTotal.WithLabelValues("payme", "unauthorized", strconv.Itoa(CodeInsufficientAccess)).Inc()
		return &Response{
			ID:    parseID(body),
			Error: newError(CodeInsufficientAccess, "Insufficient privilege", "Недостаточно привилегий", "Imtiyozlar yetarli emas", ""),
		}
	}

	req, perr := Parse(body)
	if perr != nil {
		resp := &Response{Error: perr}
		if req != nil {
			resp.ID = req.ID
		}
		util.PaymentWebhooksTotal.WithLabelValues("payme", "invalid", strconv.Itoa(perr.Code)).Inc()
		return resp
	}

	result, cerr := p.dispatch(ctx, req.Call)
	code := 0
	if cerr != nil {
		code = cerr.Code
		p.logger.Info("Payme call rejected",
			zap.String("method", req.Call.Method()),
			zap.Int("code", cerr.Code),
			zap.String("data", cerr.Data))
	}
	util.PaymentWebhooksTotal.WithLabelValues("payme", req.Call.Method(), strconv.Itoa(code)).Inc()

	if cerr != nil {
		return &Response{ID: req.ID, Error: cerr}
	}
	return &Response{ID: req.ID, Result: result}
}

func (p *Processor) dispatch(ctx context.Context, call Call) (interface{}, *Error) {
	switch c := call.(type) {
	case *CheckPerformTransaction:
		return p.checkPerform(ctx, c)
	case *CreateTransaction:
		return p.create(ctx, c)
	case *PerformTransaction:
		return p.perform(ctx, c)
	case *CancelTransaction:
		return p.cancel(ctx, c)
	case *CheckTransaction:
		return p.check(ctx, c)
	}
	return nil, newError(CodeMethodNotFound, "Method not found", "Метод не найден", "Metod topilmadi", call.Method())
}

func (p *Processor) checkPerform(ctx context.Context, c *CheckPerformTransaction) (interface{}, *Error) {
	pay, perr := p.byTransactionID(ctx, c.Account.TransactionID)
	if perr != nil {
		return nil, perr
	}
	if pay.Status != models.PaymentStatusPending {
		return nil, alreadyProcessed()
	}
	if gateway.CheckAmount(pay, c.Amount) != nil {
		return nil, invalidAmount()
	}
	return map[string]interface{}{"allow": true}, nil
}

func (p *Processor) create(ctx context.Context, c *CreateTransaction) (interface{}, *Error) {
	pay, perr := p.byTransactionID(ctx, c.Account.TransactionID)
	if perr != nil {
		return nil, perr
	}
	if gateway.CheckAmount(pay, c.Amount) != nil {
		return nil, invalidAmount()
	}

	pay, err := p.settlement.BeginPayment(ctx, pay.TransactionID, c.ID)
	if errors.Is(err, models.ErrConflict) {
		return nil, alreadyProcessed()
	}
	if err != nil {
		return nil, p.systemError(err)
	}

	return map[string]interface{}{
		"create_time": millis(pay.ProcessingAt),
		"transaction": strconv.FormatInt(pay.ID, 10),
		"state":       StateCreated,
	}, nil
}

func (p *Processor) perform(ctx context.Context, c *PerformTransaction) (interface{}, *Error) {
	pay, perr := p.byExternalID(ctx, c.ID)
	if perr != nil {
		return nil, perr
	}

	pay, err := p.settlement.CompletePayment(ctx, pay.TransactionID)
	if errors.Is(err, models.ErrConflict) {
		return nil, newError(CodeCannotPerform, "Unable to perform operation", "Невозможно выполнить операцию", "Amalni bajarib bo'lmaydi", "state")
	}
	if err != nil {
		return nil, p.systemError(err)
	}

	return map[string]interface{}{
		"transaction":  strconv.FormatInt(pay.ID, 10),
		"perform_time": millis(pay.CompletedAt),
		"state":        StatePerformed,
	}, nil
}

func (p *Processor) cancel(ctx context.Context, c *CancelTransaction) (interface{}, *Error) {
	pay, perr := p.byExternalID(ctx, c.ID)
	if perr != nil {
		return nil, perr
	}
	if pay.Status == models.PaymentStatusCompleted {
		return nil, cannotCancel()
	}

	pay, err := p.settlement.AbortPayment(ctx, pay.TransactionID, fmt.Sprintf("payme cancel reason %d", c.Reason))
	if errors.Is(err, models.ErrConflict) {
		return nil, cannotCancel()
	}
	if err != nil {
		return nil, p.systemError(err)
	}

	return map[string]interface{}{
		"transaction": strconv.FormatInt(pay.ID, 10),
		"cancel_time": millis(pay.CancelledAt),
		"state":       StateCancelled,
	}, nil
}

func (p *Processor) check(ctx context.Context, c *CheckTransaction) (interface{}, *Error) {
	pay, perr := p.byExternalID(ctx, c.ID)
	if perr != nil {
		return nil, perr
	}

	state := StateCreated
	switch pay.Status {
	case models.PaymentStatusCompleted:
		state = StatePerformed
	case models.PaymentStatusCancelled, models.PaymentStatusFailed:
		state = StateCancelled
	}

	return map[string]interface{}{
		"create_time":  millis(pay.ProcessingAt),
		"perform_time": millis(pay.CompletedAt),
		"cancel_time":  millis(pay.CancelledAt),
		"transaction":  strconv.FormatInt(pay.ID, 10),
		"state":        state,
		"reason":       nil,
	}, nil
}

func (p *Processor) byTransactionID(ctx context.Context, txID string) (*models.Payment, *Error) {
	pay, err := p.settlement.GetPaymentByTransactionID(ctx, txID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && pay.Provider != models.ProviderPayme) {
		return nil, newError(CodeAccountNotFound, "Transaction not found", "Транзакция не найдена", "Tranzaksiya topilmadi", "transaction_id")
	}
	if err != nil {
		return nil, p.systemError(err)
	}
	return pay, nil
}

func (p *Processor) byExternalID(ctx context.Context, id string) (*models.Payment, *Error) {
	pay, err := p.settlement.GetPaymentByExternalID(ctx, models.ProviderPayme, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, newError(CodeTransactionMissing, "Transaction not found", "Транзакция не найдена", "Tranzaksiya topilmadi", "id")
	}
	if err != nil {
		return nil, p.systemError(err)
	}
	return pay, nil
}

func (p *Processor) systemError(err error) *Error {
	p.logger.Error("Payme call failed", zap.Error(err))
	return newError(CodeSystemError, "System error", "Системная ошибка", "Tizim xatosi", "")
}

func alreadyProcessed() *Error {
	return newError(CodeCannotPerform, "Transaction already processed", "Транзакция уже обработана", "Tranzaksiya allaqachon qayta ishlangan", "state")
}

func invalidAmount() *Error {
	return newError(CodeInvalidAmount, "Invalid amount", "Неверная сумма", "Noto'g'ri summa", "amount")
}

func cannotCancel() *Error {
	return newError(CodeCannotCancel, "Transaction cannot be cancelled", "Невозможно отменить транзакцию", "Tranzaksiyani bekor qilib bo'lmaydi", "state")
}

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
