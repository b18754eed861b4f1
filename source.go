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
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/payxero/payxero/internal/apierror"
	"github.com/payxero/payxero/internal/request"
	"github.com/payxero/payxero/model"
)

const (
	depositsRoute     = "wc/v3/payments/deposits"
	transactionsRoute = "wc/v3/payments/reports/transactions"

	// Stripe-backed payout ids carry this prefix; inputs that already have
	// it skip resolution entirely.
	nativeIDPrefix = "po_"

	resolvePageSize = 100
	resolveMaxPages = 20

	transactionsPageSize = 100
	transactionsMaxPages = 200

	sourceErrorBodyLimit = 500
)

// Dispatcher issues one request against the payment platform's REST surface
// and returns the raw response body.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, route string, query url.Values) ([]byte, error)
}

// HTTPDispatcher is the primary strategy: an authenticated loopback HTTP
// request against the platform's own REST routes. Some of those routes are
// registered lazily and are only reachable this way.
type HTTPDispatcher struct {
	BaseURL     string
	Credentials func(ctx context.Context) (model.SourceCredential, error)
	Timeout     time.Duration
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, method, route string, query url.Values) ([]byte, error) {
	u := d.BaseURL + "/" + strings.TrimPrefix(route, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	cred, err := d.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(cred.ConsumerKey, cred.ConsumerSecret))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "payxero/"+Version)

	status, body, err := request.Do(req, d.Timeout)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrTransport,
			fmt.Sprintf("payments loopback REST request failed: %v", err), nil)
	}
	return body, classifyResponse(route, status, body)
}

// InternalDispatcher is the fallback strategy: dispatch the request against
// an in-process handler for the same routes, requiring no external auth.
type InternalDispatcher struct {
	Handler http.Handler
}

func (d *InternalDispatcher) Dispatch(ctx context.Context, method, route string, query url.Values) ([]byte, error) {
	path := "/" + strings.TrimPrefix(route, "/")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	rec := &memoryResponseWriter{header: make(http.Header), status: http.StatusOK}
	d.Handler.ServeHTTP(rec, req)

	return rec.body, classifyResponse(route, rec.status, rec.body)
}

// memoryResponseWriter captures an in-process dispatch without a socket.
type memoryResponseWriter struct {
	header http.Header
	body   []byte
	status int
}

func (w *memoryResponseWriter) Header() http.Header { return w.header }

func (w *memoryResponseWriter) Write(p []byte) (int, error) {
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *memoryResponseWriter) WriteHeader(status int) { w.status = status }

// classifyResponse applies the shared error taxonomy to a REST response:
// missing route, plain not-found, auth failure, and any other non-2xx
// status are reported as distinct causes with enough context to diagnose.
func classifyResponse(route string, status int, body []byte) error {
	if status == http.StatusNotFound && strings.Contains(string(body), "rest_no_route") {
		return apierror.NewHTTPError(apierror.ErrProtocol, status,
			fmt.Sprintf("payments REST route missing: %s. Ensure the payments plugin is active and its REST endpoints are not disabled.", route))
	}
	if status == http.StatusNotFound {
		return apierror.NewHTTPError(apierror.ErrNotFound, status,
			fmt.Sprintf("payments REST resource not found: %s", route))
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apierror.NewHTTPError(apierror.ErrAuthorization, status,
			fmt.Sprintf("payments REST auth failed (HTTP %d): %s", status, request.Truncate(body, sourceErrorBodyLimit)))
	}
	if status < 200 || status >= 300 {
		return apierror.NewHTTPError(apierror.ErrProtocol, status,
			fmt.Sprintf("payments REST error (HTTP %d): %s", status, strings.TrimSpace(request.Truncate(body, sourceErrorBodyLimit))))
	}
	return nil
}

// loopbackFailureNeedles are matched case-insensitively against a primary
// dispatch failure to decide whether the in-process fallback applies.
var loopbackFailureNeedles = []string{
	"loopback",
	"connection refused",
	"connection reset",
	"timed out",
	"timeout",
	"no such host",
	"could not resolve",
	"network is unreachable",
	"transport_error",
}

// LooksLikeLoopbackFailure reports whether a failure message indicates the
// loopback HTTP path is blocked (timeout, refused connection, DNS failure,
// generic transport error). Pure so it can be tested without network code.
func LooksLikeLoopbackFailure(message string) bool {
	lowered := strings.ToLower(message)
	for _, needle := range loopbackFailureNeedles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}

// SourceClient reads payout and transaction data from the payment
// platform. It never retries; each failure surfaces once with its cause.
type SourceClient struct {
	primary  Dispatcher
	fallback Dispatcher
}

// NewSourceClient wires the dispatch strategies. fallback may be nil when
// no in-process handler is mounted.
func NewSourceClient(primary, fallback Dispatcher) *SourceClient {
	return &SourceClient{primary: primary, fallback: fallback}
}

// dispatch runs the primary strategy and falls back to in-process dispatch
// only when the primary failure looks like a blocked loopback. Any other
// failure propagates unchanged.
func (c *SourceClient) dispatch(ctx context.Context, method, route string, query url.Values) ([]byte, error) {
	body, err := c.primary.Dispatch(ctx, method, route, query)
	if err == nil {
		return body, nil
	}
	if c.fallback != nil && LooksLikeLoopbackFailure(err.Error()) {
		logrus.WithField("route", route).Warn("loopback dispatch blocked, falling back to internal dispatch")
		return c.fallback.Dispatch(ctx, method, route, query)
	}
	return nil, err
}

// decodeDepositList normalizes the two response shapes the platform
// returns: an envelope with a data field, or a bare list.
func decodeDepositList(body []byte) ([]model.Deposit, error) {
	var envelope struct {
		Data []model.Deposit `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var list []model.Deposit
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	return nil, apierror.NewAPIError(apierror.ErrProtocol,
		"payments REST returned invalid JSON for deposit list", nil)
}

// ListDeposits returns one page of payouts sorted by date descending.
func (c *SourceClient) ListDeposits(ctx context.Context, page, pageSize int) ([]model.Deposit, error) {
	query := url.Values{}
	query.Set("sort", "date")
	query.Set("direction", "DESC")
	query.Set("pagesize", fmt.Sprintf("%d", pageSize))
	query.Set("page", fmt.Sprintf("%d", page))

	body, err := c.dispatch(ctx, http.MethodGet, depositsRoute, query)
	if err != nil {
		return nil, err
	}
	return decodeDepositList(body)
}

// GetDepositByID fetches a single payout. A not-found response yields an
// empty deposit, not an error; transport and auth failures propagate.
func (c *SourceClient) GetDepositByID(ctx context.Context, depositID string) (model.Deposit, error) {
	body, err := c.dispatch(ctx, http.MethodGet, depositsRoute+"/"+depositID, nil)
	if err != nil {
		if apierror.CodeOf(err) == apierror.ErrNotFound {
			return model.Deposit{}, nil
		}
		return model.Deposit{}, err
	}

	var deposit model.Deposit
	if err := json.Unmarshal(body, &deposit); err != nil {
		return model.Deposit{}, apierror.NewAPIError(apierror.ErrProtocol,
			"payments REST returned invalid JSON for deposit", nil)
	}
	return deposit, nil
}

// tryGetDepositByID is the best-effort direct fetch used during
// resolution; every failure is treated as a miss.
func (c *SourceClient) tryGetDepositByID(ctx context.Context, depositID string) model.Deposit {
	deposit, err := c.GetDepositByID(ctx, depositID)
	if err != nil {
		return model.Deposit{}
	}
	return deposit
}

// referenceMatches compares a deposit's bank reference against the input.
// Exact match only; the comparison is constant-time, mirroring the
// original check, though the identifiers are not secrets.
func referenceMatches(candidate, input string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(input)) == 1
}

// ResolveDepositID maps what older UI links carry (sometimes a bank
// reference) to the platform's native payout id.
//
// Resolution order: a native-prefixed input is returned unchanged with no
// network call; then a direct fetch is attempted; then up to 20 pages of
// 100 payouts are scanned for a matching bank reference. An input that
// resolves nowhere is returned as-is and the caller must treat it as
// unresolved.
func (c *SourceClient) ResolveDepositID(ctx context.Context, inputID string) string {
	inputID = strings.TrimSpace(inputID)

	if inputID == "" {
		return inputID
	}
	if strings.HasPrefix(inputID, nativeIDPrefix) {
		return inputID
	}

	if direct := c.tryGetDepositByID(ctx, inputID); direct.ID != "" {
		return direct.ID
	}

	for page := 1; page <= resolveMaxPages; page++ {
		list, err := c.ListDeposits(ctx, page, resolvePageSize)
		if err != nil || len(list) == 0 {
			break
		}

		for _, deposit := range list {
			if deposit.ID == "" {
				continue
			}
			for _, candidate := range deposit.BankReferences() {
				if referenceMatches(candidate, inputID) {
					return deposit.ID
				}
			}
		}

		if len(list) < resolvePageSize {
			break
		}
	}

	return inputID
}

// ListTransactionsForDeposit accumulates the platform's transaction report
// rows for one deposit, paging until a short page is returned.
func (c *SourceClient) ListTransactionsForDeposit(ctx context.Context, depositID string) ([]model.TransactionRow, error) {
	out := make([]model.TransactionRow, 0, transactionsPageSize)

	for page := 1; page <= transactionsMaxPages; page++ {
		query := url.Values{}
		query.Set("deposit_id", depositID)
		query.Set("per_page", fmt.Sprintf("%d", transactionsPageSize))
		query.Set("page", fmt.Sprintf("%d", page))
		query.Set("sort", "date")
		query.Set("direction", "ASC")

		body, err := c.dispatch(ctx, http.MethodGet, transactionsRoute, query)
		if err != nil {
			return nil, err
		}

		var batch []model.TransactionRow
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrProtocol,
				"payments REST returned invalid JSON for transactions", nil)
		}

		out = append(out, batch...)
		if len(batch) < transactionsPageSize {
			break
		}
	}

	return out, nil
}

// DepositsRoutesAvailable probes the deposits route over the primary
// strategy only; the probe exists to tell the operator whether loopback
// REST access works at all.
func (c *SourceClient) DepositsRoutesAvailable(ctx context.Context) bool {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("pagesize", "1")
	_, err := c.primary.Dispatch(ctx, http.MethodGet, depositsRoute, query)
	return err == nil
}
