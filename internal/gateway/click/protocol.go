// Package click adapts the Click SHOP-API prepare/complete callbacks to the
// payment state machine.
package click

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"water-service/internal/subscription"

	"github.com/shopspring/decimal"
)

// Response error codes
const (
	CodeSuccess             = 0
	CodeSignFailed          = -1
	CodeInvalidAmount       = -2
	CodeActionNotFound      = -3
	CodeAlreadyPaid         = -4
	CodeOrderNotFound       = -5
	CodeTransactionNotFound = -6
	CodeUpdateFailed        = -7
	CodeBadRequest          = -8
	CodeCancelled           = -9
)

// Actions sent by Click
const (
	ActionPrepare  = 0
	ActionComplete = 1
)

// Params are the fields shared by both callbacks
type Params struct {
	ClickTransID    int64       `json:"click_trans_id"`
	ServiceID       int64       `json:"service_id"`
	ClickPaydocID   int64       `json:"click_paydoc_id"`
	MerchantTransID string      `json:"merchant_trans_id"`
	Amount          json.Number `json:"amount"`
	Action          int         `json:"action"`
	Error           int         `json:"error"`
	ErrorNote       string      `json:"error_note"`
	SignTime        string      `json:"sign_time"`
	SignString      string      `json:"sign_string"`
}

// Call is either a Prepare or a Complete callback
type Call interface {
	params() *Params
	signPayload(secret string) string
}

// Prepare is the first callback: Click asks whether the payment may proceed
type Prepare struct {
	Params
}

// Complete is the second callback: Click reports the outcome
type Complete struct {
	Params
	MerchantPrepareID int64 `json:"merchant_prepare_id"`
}

func (p *Prepare) params() *Params  { return &p.Params }
func (c *Complete) params() *Params { return &c.Params }

func (p *Prepare) signPayload(secret string) string {
	return fmt.Sprintf("%d%d%s%s%s%d%s",
		p.ClickTransID, p.ServiceID, secret, p.MerchantTransID, p.Amount.String(), p.Action, p.SignTime)
}

func (c *Complete) signPayload(secret string) string {
	return fmt.Sprintf("%d%d%s%s%d%s%d%s",
		c.ClickTransID, c.ServiceID, secret, c.MerchantTransID, c.MerchantPrepareID, c.Amount.String(), c.Action, c.SignTime)
}

// Sign computes the md5 signature Click attaches to a callback
func Sign(call Call, secret string) string {
	sum := md5.Sum([]byte(call.signPayload(secret)))
	return hex.EncodeToString(sum[:])
}

// Response is returned for both callbacks
type Response struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// ParsePrepare decodes a prepare callback body
func ParsePrepare(body []byte) (*Prepare, error) {
	var p Prepare
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, checkRequired(&p.Params)
}

// ParseComplete decodes a complete callback body
func ParseComplete(body []byte) (*Complete, error) {
	var c Complete
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, err
	}
	if err := checkRequired(&c.Params); err != nil {
		return nil, err
	}
	if c.MerchantPrepareID == 0 {
		return nil, fmt.Errorf("merchant_prepare_id is required")
	}
	return &c, nil
}

func checkRequired(p *Params) error {
	switch {
	case p.ClickTransID == 0:
		return fmt.Errorf("click_trans_id is required")
	case p.MerchantTransID == "":
		return fmt.Errorf("merchant_trans_id is required")
	case p.Amount == "":
		return fmt.Errorf("amount is required")
	case p.SignString == "":
		return fmt.Errorf("sign_string is required")
	}
	return nil
}

// ToMinorUnits converts an amount in sums as reported by Click to tiyin.
// Amounts with a fraction finer than one tiyin are rejected.
func ToMinorUnits(amount json.Number) (int64, error) {
	d, err := decimal.NewFromString(amount.String())
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	minor := d.Mul(decimal.NewFromInt(subscription.MinorUnitsPerSum))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has sub-tiyin precision", amount)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits formats tiyin as sums with two decimals
func FromMinorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
