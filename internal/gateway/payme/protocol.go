// Package payme adapts the Payme merchant JSON-RPC protocol to the payment
// state machine.
package payme

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC and merchant API error codes
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInsufficientAccess = -32504
	CodeSystemError        = -32400
	CodeInvalidAmount      = -31001
	CodeTransactionMissing = -31003
	CodeCannotCancel       = -31007
	CodeCannotPerform      = -31008
	CodeAccountNotFound    = -31050
)

// Transaction states reported back to Payme
const (
	StateCreated   = 1
	StatePerformed = 2
	StateCancelled = -1
)

// Message is a localized error text
type Message struct {
	Ru string `json:"ru"`
	Uz string `json:"uz"`
	En string `json:"en"`
}

// Error is the JSON-RPC error object
type Error struct {
	Code    int     `json:"code"`
	Message Message `json:"message"`
	Data    string  `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("payme error %d: %s", e.Code, e.Message.En)
}

func newError(code int, en, ru, uz, data string) *Error {
	return &Error{Code: code, Message: Message{Ru: ru, Uz: uz, En: en}, Data: data}
}

// Response is the JSON-RPC envelope returned for every call
type Response struct {
	Result interface{}     `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	ID     json.RawMessage `json:"id"`
}

// Account identifies the payment on our side
type Account struct {
	TransactionID string `json:"transaction_id"`
}

// Call is one of the supported merchant API methods
type Call interface {
	Method() string
}

// CheckPerformTransaction asks whether a payment may be made
type CheckPerformTransaction struct {
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

// CreateTransaction binds a Payme transaction to our payment
type CreateTransaction struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

// PerformTransaction reports the money as debited
type PerformTransaction struct {
	ID string `json:"id"`
}

// CancelTransaction reverts a transaction
type CancelTransaction struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

// CheckTransaction asks for the current state of a transaction
type CheckTransaction struct {
	ID string `json:"id"`
}

func (CheckPerformTransaction) Method() string { return "CheckPerformTransaction" }
func (CreateTransaction) Method() string       { return "CreateTransaction" }
func (PerformTransaction) Method() string      { return "PerformTransaction" }
func (CancelTransaction) Method() string       { return "CancelTransaction" }
func (CheckTransaction) Method() string        { return "CheckTransaction" }

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

// Request is a parsed webhook call
type Request struct {
	ID   json.RawMessage
	Call Call
}

// parseID extracts the request id so even rejected calls can echo it
func parseID(body []byte) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return env.ID
}

// Parse decodes a webhook body into its Call variant
func Parse(body []byte) (*Request, *Error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newError(CodeParseError, "Parse error", "Ошибка разбора запроса", "So'rovni tahlil qilishda xato", "")
	}

	var call Call
	switch env.Method {
	case "CheckPerformTransaction":
		call = &CheckPerformTransaction{}
	case "CreateTransaction":
		call = &CreateTransaction{}
	case "PerformTransaction":
		call = &PerformTransaction{}
	case "CancelTransaction":
		call = &CancelTransaction{}
	case "CheckTransaction":
		call = &CheckTransaction{}
	default:
		return &Request{ID: env.ID}, newError(CodeMethodNotFound, "Method not found", "Метод не найден", "Metod topilmadi", env.Method)
	}

	if len(env.Params) == 0 {
		return &Request{ID: env.ID}, newError(CodeInvalidRequest, "Missing params", "Отсутствуют параметры", "Parametrlar yo'q", "params")
	}
	if err := json.Unmarshal(env.Params, call); err != nil {
		return &Request{ID: env.ID}, newError(CodeInvalidRequest, "Invalid params", "Неверные параметры", "Noto'g'ri parametrlar", "params")
	}
	if err := validate(call); err != nil {
		return &Request{ID: env.ID}, err
	}

	return &Request{ID: env.ID, Call: call}, nil
}

func validate(call Call) *Error {
	missing := func(field string) *Error {
		return newError(CodeInvalidRequest, "Missing field "+field, "Отсутствует поле "+field, field+" maydoni yo'q", field)
	}
	switch c := call.(type) {
	case *CheckPerformTransaction:
		if c.Account.TransactionID == "" {
			return missing("account.transaction_id")
		}
	case *CreateTransaction:
		if c.ID == "" {
			return missing("id")
		}
		if c.Account.TransactionID == "" {
			return missing("account.transaction_id")
		}
	case *PerformTransaction:
		if c.ID == "" {
			return missing("id")
		}
	case *CancelTransaction:
		if c.ID == "" {
			return missing("id")
		}
	case *CheckTransaction:
		if c.ID == "" {
			return missing("id")
		}
	}
	return nil
}
