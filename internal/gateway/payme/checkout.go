package payme

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"water-service/internal/models"
)

// Checkout builds Payme checkout links: the merchant, transaction and amount
// are packed into a base64 blob appended to the checkout path.
type Checkout struct {
	MerchantID string
	BaseURL    string
	ReturnURL  string
}

// Provider implements gateway.CheckoutBuilder
func (c Checkout) Provider() models.PaymentProvider {
	return models.ProviderPayme
}

// CheckoutURL implements gateway.CheckoutBuilder
func (c Checkout) CheckoutURL(p *models.Payment) (string, error) {
	if c.MerchantID == "" || c.BaseURL == "" {
		return "", errors.New("payme checkout is not configured")
	}

	params := fmt.Sprintf("m=%s;ac.transaction_id=%s;a=%d", c.MerchantID, p.TransactionID, p.Amount)
	if c.ReturnURL != "" {
		params += ";c=" + c.ReturnURL
	}

	return strings.TrimRight(c.BaseURL, "/") + "/" + base64.StdEncoding.EncodeToString([]byte(params)), nil
}
