package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quizforge/server/internal/model"
)

const (
	paypalStatusCompleted = "Completed"
	paypalVerified        = "VERIFIED"
)

// PayPalParser turns a PayPal IPN form into a grant request. When verifyURL
// is set the raw message is posted back and must be answered VERIFIED.
type PayPalParser struct {
	verifyURL     string
	receiverEmail string
	client        *http.Client
}

// NewPayPalParser creates an IPN parser.
func NewPayPalParser(verifyURL, receiverEmail string, client *http.Client) *PayPalParser {
	if client == nil {
		client = http.DefaultClient
	}
	return &PayPalParser{verifyURL: verifyURL, receiverEmail: receiverEmail, client: client}
}

// Parse validates and parses the urlencoded IPN body.
func (p *PayPalParser) Parse(ctx context.Context, body []byte) (*model.GrantRequest, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if p.verifyURL != "" {
		if err := p.verify(ctx, body); err != nil {
			return nil, err
		}
	}

	if status := form.Get("payment_status"); status != paypalStatusCompleted {
		return nil, fmt.Errorf("%w: payment_status %q", ErrIgnored, status)
	}
	if p.receiverEmail != "" && !strings.EqualFold(form.Get("receiver_email"), p.receiverEmail) {
		return nil, fmt.Errorf("%w: unexpected receiver_email", ErrVerificationFailed)
	}

	accountID := strings.TrimSpace(form.Get("custom"))
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing custom (account id)", ErrInvalidPayload)
	}
	txnID := strings.TrimSpace(form.Get("txn_id"))
	if txnID == "" {
		return nil, fmt.Errorf("%w: missing txn_id", ErrInvalidPayload)
	}
	amount, err := decimal.NewFromString(form.Get("mc_gross"))
	if err != nil {
		return nil, fmt.Errorf("%w: mc_gross: %v", ErrInvalidPayload, err)
	}

	return &model.GrantRequest{
		AccountID: accountID,
		Amount:    amount,
		EventID:   txnID,
		Source:    model.GrantSourcePayPal,
	}, nil
}

func (p *PayPalParser) verify(ctx context.Context, body []byte) error {
	payload := append([]byte("cmd=_notify-validate&"), body...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ipn postback: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ipn postback: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("read ipn postback: %w", err)
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(answer)) != paypalVerified {
		return fmt.Errorf("%w: ipn answered %d %q", ErrVerificationFailed, resp.StatusCode, strings.TrimSpace(string(answer)))
	}
	return nil
}
