/*
Copyright 2024 PayXero Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Delivery states for a payout. One record per payout id, overwritten
	// on each attempt.
	StatePending = "pending"
	StateSent    = "sent"
	StateError   = "error"
)

// Deposit is a payout batch as reported by the payment platform. It is
// read-only upstream data and is never mutated locally. The platform issues
// an opaque id (po_ prefixed for Stripe-backed payouts); older UI links may
// carry a bank reference instead, which several response shapes spell
// differently.
type Deposit struct {
	ID            string      `json:"id"`
	Date          string      `json:"date"`
	Created       string      `json:"created"`
	ArrivalDate   string      `json:"arrival_date"`
	Status        string      `json:"status"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	BankReference string      `json:"bank_reference"`
	BankRefID     string      `json:"bankReferenceId"`
	BankRefIDAlt  string      `json:"bank_reference_id"`
	BankRefCamel  string      `json:"bankReference"`
}

// BankReferences returns the non-empty bank reference spellings carried by
// the deposit, in the order they are matched during id resolution.
func (d Deposit) BankReferences() []string {
	out := make([]string, 0, 4)
	for _, ref := range []string{d.BankReference, d.BankRefID, d.BankRefIDAlt, d.BankRefCamel} {
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// AmountMajor converts the deposit amount from minor units (cents) to major
// units, exact to two decimal places for any currency.
func (d Deposit) AmountMajor() (decimal.Decimal, error) {
	raw := strings.TrimSpace(d.Amount.String())
	if raw == "" {
		raw = "0"
	}
	cents, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return cents.Div(decimal.NewFromInt(100)), nil
}

// DateFields returns the candidate payout date fields in precedence order.
func (d Deposit) DateFields() []string {
	return []string{d.Date, d.Created, d.ArrivalDate}
}

// TransactionRow is one row of the platform's transactions report for a
// deposit.
type TransactionRow struct {
	TransactionID string      `json:"transaction_id"`
	Date          string      `json:"date"`
	Type          string      `json:"type"`
	Amount        json.Number `json:"amount"`
	Fees          json.Number `json:"fees"`
	Net           json.Number `json:"net"`
	Currency      string      `json:"currency"`
	DepositID     string      `json:"deposit_id"`
	OrderID       json.Number `json:"order_id"`
}

// DeliveryState records the outcome of the most recent delivery attempt for
// a payout. Last write wins; it is not an append-only log.
type DeliveryState struct {
	PayoutID  string    `json:"payout_id"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceMeta links a payout to the invoice created for it in the
// accounting system. Written only after a successful invoice creation.
type InvoiceMeta struct {
	PayoutID      string    `json:"payout_id"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TokenSet is the OAuth2 token material for the single connected
// organisation. The refresh token is the durable credential; the access
// token is short-lived derived data.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// ExpiresAt returns the unix time the access token expires, or 0 when the
// issuance metadata is incomplete.
func (t TokenSet) ExpiresAt() int64 {
	if t.CreatedAt <= 0 || t.ExpiresIn <= 0 {
		return 0
	}
	return t.CreatedAt + t.ExpiresIn
}

// SourceCredential is the locally-minted read-only key pair used to
// authenticate loopback calls to the payment platform's REST routes. It is
// stored encrypted and lives until uninstall.
type SourceCredential struct {
	KeyID          string `json:"key_id"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// CredentialNotice is the one-time notice recorded when a new read-only key
// pair is minted, so the operator surface can surface it until cleared.
type CredentialNotice struct {
	KeyID     string    `json:"key_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact names the accounting-system contact an invoice is raised against.
type Contact struct {
	Name string `json:"Name"`
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	UnitAmount  float64 `json:"UnitAmount"`
	AccountCode string  `json:"AccountCode"`
}

// Invoice is the accounting-system invoice payload. Field names follow the
// provider's wire casing.
type Invoice struct {
	Type            string     `json:"Type"`
	Status          string     `json:"Status"`
	Contact         Contact    `json:"Contact"`
	CurrencyCode    string     `json:"CurrencyCode"`
	Date            string     `json:"Date"`
	DueDate         string     `json:"DueDate"`
	Reference       string     `json:"Reference"`
	LineAmountTypes string     `json:"LineAmountTypes"`
	LineItems       []LineItem `json:"LineItems"`
}

// DeliveryResult reports the outcome of one delivery attempt. Body holds
// the provider's raw response (truncated) for downstream parsing.
type DeliveryResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
	Body  string `json:"body,omitempty"`
}

// LockDates carries the organisation's period-lock and end-of-year-lock
// dates plus the later of the two, all formatted YYYY-MM-DD.
type LockDates struct {
	PeriodLock string `json:"period_lock"`
	EOYLock    string `json:"eoy_lock"`
	MaxLock    string `json:"max_lock"`
}
