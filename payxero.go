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

// Package payxero pushes payment-platform payouts into Xero as draft
// invoices: it resolves payout identifiers, manages the OAuth2 token
// lifecycle against Xero, builds the invoice payload and records delivery
// state with per-payout serialization.
package payxero

import (
	"context"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/payxero/payxero/cache"
	"github.com/payxero/payxero/config"
	redis_db "github.com/payxero/payxero/internal/redis-db"
	"github.com/payxero/payxero/internal/vault"
	"github.com/payxero/payxero/model"
	"github.com/payxero/payxero/store"
)

const Version = "0.1.0"

// PayXero wires the pipeline: the source payment client, the Xero OAuth
// client and the delivery orchestrator over a shared key-value store.
type PayXero struct {
	store     store.Store
	source    *SourceClient
	xero      *XeroClient
	deliverer *Deliverer
	redis     redis.UniversalClient
}

// NewPayXero initializes the pipeline from the loaded configuration.
func NewPayXero() (*PayXero, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	client := redisClient.Client()

	st := store.NewRedisStore(client, vault.New(configuration.Server.SecretKey))
	ca := cache.NewCache(client)

	primary := &HTTPDispatcher{
		BaseURL:     configuration.Source.BaseUrl,
		Credentials: st.EnsureSourceCredential,
	}
	source := NewSourceClient(primary, nil)
	xero := NewXeroClient(st, ca)
	deliverer := NewDeliverer(source, xero, st, client)

	return &PayXero{
		store:     st,
		source:    source,
		xero:      xero,
		deliverer: deliverer,
		redis:     client,
	}, nil
}

// WithSourceFallback mounts an in-process handler for the payment
// platform's REST routes, enabling the internal dispatch fallback when the
// loopback HTTP path is blocked.
func (p *PayXero) WithSourceFallback(handler http.Handler) *PayXero {
	p.source.fallback = &InternalDispatcher{Handler: handler}
	return p
}

// SendPayout resolves the operator-supplied identifier and delivers the
// payout as one draft invoice.
func (p *PayXero) SendPayout(ctx context.Context, inputID string) model.DeliveryResult {
	depositID := p.source.ResolveDepositID(ctx, inputID)
	return p.deliverer.Send(ctx, depositID)
}

// Deposits lists payouts together with their recorded delivery state and
// invoice linkage. Payouts whose status is outside the configured
// payout-status filter are omitted.
func (p *PayXero) Deposits(ctx context.Context, page, pageSize int) ([]DepositView, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	allowed := allowedStatuses(configuration.Source.PayoutStatuses)

	deposits, err := p.source.ListDeposits(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	states, err := p.store.DeliveryStates(ctx)
	if err != nil {
		return nil, err
	}
	metas, err := p.store.InvoiceMetas(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DepositView, 0, len(deposits))
	for _, deposit := range deposits {
		if len(allowed) > 0 && !allowed[strings.ToLower(deposit.Status)] {
			continue
		}
		view := DepositView{Deposit: deposit}
		if state, ok := states[deposit.ID]; ok {
			view.DeliveryState = state.State
		}
		if meta, ok := metas[deposit.ID]; ok {
			view.InvoiceID = meta.InvoiceID
			view.InvoiceNumber = meta.InvoiceNumber
		}
		out = append(out, view)
	}
	return out, nil
}

// allowedStatuses parses the comma-separated payout-status filter into a
// lowercase lookup set. An empty filter admits every status.
func allowedStatuses(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, status := range strings.Split(raw, ",") {
		status = strings.ToLower(strings.TrimSpace(status))
		if status != "" {
			out[status] = true
		}
	}
	return out
}

// DepositView is a payout joined with its local delivery bookkeeping for
// the operator surface.
type DepositView struct {
	model.Deposit
	DeliveryState string `json:"delivery_state,omitempty"`
	InvoiceID     string `json:"invoice_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
}

// Status summarizes the connection and route health for the operator.
type Status struct {
	Connected       bool                    `json:"connected"`
	RoutesAvailable bool                    `json:"routes_available"`
	LockDates       model.LockDates         `json:"lock_dates"`
	KeyNotice       *model.CredentialNotice `json:"key_notice,omitempty"`
}

// Status reports connection state, source route availability, lock dates
// and any pending one-time credential notice.
func (p *PayXero) Status(ctx context.Context) Status {
	status := Status{
		Connected:       p.xero.IsConnected(ctx),
		RoutesAvailable: p.source.DepositsRoutesAvailable(ctx),
	}
	if status.Connected {
		status.LockDates = p.xero.LockDates(ctx)
	}
	if notice, err := p.store.CredentialNotice(ctx); err == nil {
		status.KeyNotice = notice
	}
	return status
}

// ClearKeyNotice dismisses the one-time credential-created notice.
func (p *PayXero) ClearKeyNotice(ctx context.Context) error {
	return p.store.ClearCredentialNotice(ctx)
}

// ConnectURL starts the OAuth flow and returns the authorization URL.
func (p *PayXero) ConnectURL(ctx context.Context) (string, error) {
	return p.xero.StartConnect(ctx)
}

// CompleteConnect finishes the OAuth callback leg.
func (p *PayXero) CompleteConnect(ctx context.Context, code, state string) error {
	return p.xero.HandleCallback(ctx, code, state)
}

// IsConnected reports whether a Xero organisation is connected.
func (p *PayXero) IsConnected(ctx context.Context) bool {
	return p.xero.IsConnected(ctx)
}

// Disconnect drops the stored Xero connection.
func (p *PayXero) Disconnect(ctx context.Context) error {
	return p.xero.Disconnect(ctx)
}

// ResolveDepositID maps an operator-supplied payout identifier (native id
// or bank reference) to the platform's native id.
func (p *PayXero) ResolveDepositID(ctx context.Context, inputID string) string {
	return p.source.ResolveDepositID(ctx, inputID)
}

// TransactionsForDeposit lists the platform's transaction report rows for
// one payout.
func (p *PayXero) TransactionsForDeposit(ctx context.Context, depositID string) ([]model.TransactionRow, error) {
	return p.source.ListTransactionsForDeposit(ctx, depositID)
}
