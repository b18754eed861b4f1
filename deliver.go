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

package payxero

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/payxero/payxero/config"
	redlock "github.com/payxero/payxero/internal/lock"
	"github.com/payxero/payxero/internal/notification"
	"github.com/payxero/payxero/model"
	"github.com/payxero/payxero/store"
)

const deliveryLockTimeout = 2 * time.Minute

// Deliverer turns one payout into one draft invoice per trigger. Delivery
// attempts for the same payout are serialized with a per-payout lock;
// without it the last-write-wins state store would admit duplicate remote
// invoices under concurrent sends.
type Deliverer struct {
	source *SourceClient
	xero   *XeroClient
	store  store.Store
	redis  redis.UniversalClient
	now    func() time.Time
}

func NewDeliverer(source *SourceClient, xero *XeroClient, st store.Store, client redis.UniversalClient) *Deliverer {
	return &Deliverer{
		source: source,
		xero:   xero,
		store:  st,
		redis:  client,
		now:    time.Now,
	}
}

// Deliver builds and submits the invoice for one payout. Preconditions are
// checked before any network call: a blank account code fails immediately
// because the target system requires an account code per line item.
//
// On success the sent state and the invoice linkage are recorded. A
// partial failure after submission is not rolled back; the remote invoice
// exists whether or not local bookkeeping succeeds.
func (d *Deliverer) Deliver(ctx context.Context, depositID string) model.DeliveryResult {
	conf, err := config.Fetch()
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}

	if strings.TrimSpace(conf.Invoice.AccountCode) == "" {
		return model.DeliveryResult{
			OK:    false,
			Error: `Missing account code. Set "Account code (required)" in Settings.`,
		}
	}

	deposit, err := d.source.GetDepositByID(ctx, depositID)
	if err != nil || deposit.ID == "" {
		if err != nil {
			logrus.Error(err)
		}
		return model.DeliveryResult{OK: false, Error: "Unable to load payout details from the payment platform."}
	}

	invoice, err := buildInvoice(deposit, conf.Invoice, depositID, d.now)
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}

	if !d.xero.IsConnected(ctx) {
		return model.DeliveryResult{OK: false, Error: "Xero not connected. Go to Settings and connect to Xero."}
	}

	result := d.xero.CreateInvoice(ctx, invoice)
	if result.OK {
		if err := d.store.SaveDeliveryState(ctx, depositID, model.StateSent); err != nil {
			logrus.Error(errors.Wrap(err, "recording sent state"))
		}
		if err := d.storeInvoiceMeta(ctx, depositID, result.Body); err != nil {
			logrus.Error(errors.Wrap(err, "recording invoice meta"))
		}
	}
	return result
}

// Send wraps Deliver with the per-payout lock and the pending/error state
// transitions. A concurrent send for the same payout fails fast instead of
// racing the state store.
func (d *Deliverer) Send(ctx context.Context, depositID string) model.DeliveryResult {
	locker := redlock.ForPayout(d.redis, depositID)
	if err := locker.Lock(ctx, deliveryLockTimeout); err != nil {
		return model.DeliveryResult{OK: false, Error: "A delivery for this payout is already in progress."}
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}()

	if err := d.store.SaveDeliveryState(ctx, depositID, model.StatePending); err != nil {
		logrus.Error(errors.Wrap(err, "recording pending state"))
	}

	result := d.Deliver(ctx, depositID)
	if !result.OK {
		if err := d.store.SaveDeliveryState(ctx, depositID, model.StateError); err != nil {
			logrus.Error(errors.Wrap(err, "recording error state"))
		}
		notification.NotifyError(errors.Errorf("payout delivery failed for %s: %s", depositID, result.Error))
	}
	return result
}

// storeInvoiceMeta extracts the invoice id and number from the provider
// response and records the durable linkage. Both casings of the container
// key are accepted.
func (d *Deliverer) storeInvoiceMeta(ctx context.Context, depositID, rawBody string) error {
	meta := model.InvoiceMeta{
		PayoutID:  depositID,
		UpdatedAt: d.now().UTC(),
	}

	// json.Unmarshal matches object keys case-insensitively, covering both
	// the Invoices and invoices container spellings.
	var decoded struct {
		Invoices []struct {
			InvoiceID     string `json:"InvoiceID"`
			InvoiceNumber string `json:"InvoiceNumber"`
		} `json:"Invoices"`
	}
	if err := json.Unmarshal([]byte(rawBody), &decoded); err == nil && len(decoded.Invoices) > 0 {
		meta.InvoiceID = decoded.Invoices[0].InvoiceID
		meta.InvoiceNumber = decoded.Invoices[0].InvoiceNumber
	}

	return d.store.SaveInvoiceMeta(ctx, meta)
}

// buildInvoice assembles the single-line draft invoice for a payout.
func buildInvoice(deposit model.Deposit, cfg config.InvoiceConfig, depositID string, now func() time.Time) (model.Invoice, error) {
	amount, err := deposit.AmountMajor()
	if err != nil {
		return model.Invoice{}, errors.Wrap(err, "converting payout amount")
	}
	unitAmount, _ := amount.Round(2).Float64()

	currency := strings.ToUpper(strings.TrimSpace(deposit.Currency))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(cfg.CurrencyFallback))
	}

	date := invoiceDate(deposit, now)

	contact := strings.TrimSpace(cfg.ContactName)
	if contact == "" {
		contact = config.DefaultContactName
	}

	reference := cfg.ReferencePrefix + depositID + cfg.ReferenceSuffix

	return model.Invoice{
		Type:            "ACCREC",
		Status:          "DRAFT",
		Contact:         model.Contact{Name: contact},
		CurrencyCode:    currency,
		Date:            date,
		DueDate:         date,
		Reference:       reference,
		LineAmountTypes: "Inclusive",
		LineItems: []model.LineItem{
			{
				Description: "WooPayments payout " + depositID,
				Quantity:    1,
				UnitAmount:  unitAmount,
				AccountCode: cfg.AccountCode,
			},
		},
	}, nil
}

// invoiceDate picks the first present payout date field, defaulting to the
// current UTC date when none parse.
func invoiceDate(deposit model.Deposit, now func() time.Time) string {
	for _, raw := range deposit.DateFields() {
		if parsed := parseDate(raw); parsed != "" {
			return parsed
		}
	}
	return now().UTC().Format("2006-01-02")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate normalizes the assorted payout date formats (RFC3339, bare
// dates, epoch seconds or milliseconds) to YYYY-MM-DD. Returns empty when
// the value is absent or unparseable.
func parseDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}

	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil && epoch > 0 {
		if epoch > 1_000_000_000_000 { // milliseconds
			epoch /= 1000
		}
		return time.Unix(epoch, 0).UTC().Format("2006-01-02")
	}

	return ""
}
