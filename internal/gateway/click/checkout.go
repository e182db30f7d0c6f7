package click

import (
	"errors"
	"net/url"
	"strconv"

	"water-service/internal/models"
)

// Checkout builds Click pay-page links
type Checkout struct {
	ServiceID  int64
	MerchantID string
	BaseURL    string
	ReturnURL  string
}

// Provider implements gateway.CheckoutBuilder
func (c Checkout) Provider() models.PaymentProvider {
	return models.ProviderClick
}

// CheckoutURL implements gateway.CheckoutBuilder
func (c Checkout) CheckoutURL(p *models.Payment) (string, error) {
	if c.ServiceID == 0 || c.MerchantID == "" || c.BaseURL == "" {
		return "", errors.New("click checkout is not configured")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("service_id", strconv.FormatInt(c.ServiceID, 10))
	q.Set("merchant_id", c.MerchantID)
	q.Set("amount", FromMinorUnits(p.Amount))
	q.Set("transaction_param", p.TransactionID)
	if c.ReturnURL != "" {
		q.Set("return_url", c.ReturnURL)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
