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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/payxero/payxero/cache"
	"github.com/payxero/payxero/config"
	"github.com/payxero/payxero/internal/apierror"
	"github.com/payxero/payxero/internal/request"
	"github.com/payxero/payxero/model"
	"github.com/payxero/payxero/store"
)

const (
	XeroAuthorizeURL     = "https://login.xero.com/identity/connect/authorize"
	XeroTokenURL         = "https://identity.xero.com/connect/token"
	XeroConnectionsURL   = "https://api.xero.com/connections"
	XeroInvoicesURL      = "https://api.xero.com/api.xro/2.0/Invoices"
	XeroOrganisationsURL = "https://api.xero.com/api.xro/2.0/Organisations"

	// Access tokens within this many seconds of expiry are refreshed
	// before use.
	accessTokenRefreshWindow = 120

	invoiceBodyLimit  = 5000
	tokenErrBodyLimit = 500

	lockDatesTTL = 12 * time.Hour

	xeroCallTimeout = 25 * time.Second
)

// XeroClient manages the OAuth2 authorization-code lifecycle and invoice
// submission against the accounting API. Connection state is derived from
// the store: connected means a tenant id and a refresh token are both
// present.
type XeroClient struct {
	store store.Store
	cache cache.Cache
	now   func() time.Time

	authorizeURL     string
	tokenURL         string
	connectionsURL   string
	invoicesURL      string
	organisationsURL string
}

func NewXeroClient(s store.Store, c cache.Cache) *XeroClient {
	return &XeroClient{
		store:            s,
		cache:            c,
		now:              time.Now,
		authorizeURL:     XeroAuthorizeURL,
		tokenURL:         XeroTokenURL,
		connectionsURL:   XeroConnectionsURL,
		invoicesURL:      XeroInvoicesURL,
		organisationsURL: XeroOrganisationsURL,
	}
}

// WithClock overrides the clock used for token freshness checks.
func (x *XeroClient) WithClock(now func() time.Time) *XeroClient {
	x.now = now
	return x
}

// StartConnect validates the operator's app credentials, persists a fresh
// anti-forgery state token and returns the provider authorization URL the
// user-agent must be redirected to.
func (x *XeroClient) StartConnect(ctx context.Context) (string, error) {
	conf, err := config.Fetch()
	if err != nil {
		return "", err
	}

	if err := conf.Xero.ValidateForConnect(); err != nil {
		return "", apierror.NewAPIError(apierror.ErrConfiguration,
			"Missing Xero Client ID/Secret. Save your Xero app credentials first.", err.Error())
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}
	if err := x.store.SaveOAuthState(ctx, state); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", conf.Xero.ClientId)
	params.Set("redirect_uri", conf.Xero.RedirectUri)
	params.Set("scope", conf.Xero.Scopes)
	params.Set("state", state)

	return x.authorizeURL + "?" + params.Encode(), nil
}

// HandleCallback completes the authorization-code flow. The persisted state
// must match exactly; a mismatch terminates the flow without touching the
// stored state, so only a redone authorize step can proceed. On match the
// state is consumed, the code exchanged, the token set persisted and the
// tenant id resolved from the connections endpoint.
func (x *XeroClient) HandleCallback(ctx context.Context, code, state string) error {
	if code == "" || state == "" {
		return apierror.NewAPIError(apierror.ErrAuthorization,
			"Invalid OAuth callback (missing or invalid state/code).", nil)
	}

	saved, err := x.store.OAuthState(ctx)
	if err != nil {
		return err
	}
	if saved == "" || state != saved {
		return apierror.NewAPIError(apierror.ErrAuthorization,
			"Invalid OAuth callback (missing or invalid state/code).", nil)
	}

	// One-time use: consume the state only after it matched.
	if err := x.store.DeleteOAuthState(ctx); err != nil {
		return err
	}

	tokens, err := x.exchangeCode(ctx, code)
	if err != nil {
		return err
	}
	if err := x.store.SaveTokenSet(ctx, tokens); err != nil {
		return err
	}

	tenantID := x.resolveTenantID(ctx, tokens.AccessToken)
	if tenantID != "" {
		if err := x.store.SaveTenantID(ctx, tenantID); err != nil {
			return err
		}
	}
	return nil
}

// IsConnected is true iff a tenant id and a refresh token are both present.
// Access-token freshness is irrelevant here.
func (x *XeroClient) IsConnected(ctx context.Context) bool {
	tenantID, err := x.store.TenantID(ctx)
	if err != nil || tenantID == "" {
		return false
	}
	tokens, err := x.store.TokenSet(ctx)
	if err != nil {
		return false
	}
	return tokens.RefreshToken != ""
}

// AccessToken returns a usable access token, refreshing synchronously when
// the cached one is absent or within the refresh window of expiry. An
// empty return means not connected; the caller must not retry here.
func (x *XeroClient) AccessToken(ctx context.Context) string {
	tokens, err := x.store.TokenSet(ctx)
	if err != nil {
		logrus.Error(err)
		return ""
	}

	expiresAt := tokens.ExpiresAt()
	needsRefresh := tokens.RefreshToken != "" && expiresAt > 0 &&
		expiresAt < x.now().Unix()+accessTokenRefreshWindow

	if tokens.AccessToken != "" && !needsRefresh {
		return tokens.AccessToken
	}

	if tokens.RefreshToken == "" {
		return ""
	}

	refreshed := x.refreshTokens(ctx, tokens.RefreshToken)
	if refreshed.AccessToken == "" {
		// Soft-disconnect for this call only; stored tokens stay put so a
		// later refresh can still succeed.
		return ""
	}

	if err := x.store.SaveTokenSet(ctx, refreshed); err != nil {
		logrus.Error(err)
	}
	return refreshed.AccessToken
}

// CreateInvoice submits one invoice as a singleton batch. The response
// body is returned truncated for downstream parsing regardless of outcome.
func (x *XeroClient) CreateInvoice(ctx context.Context, invoice model.Invoice) model.DeliveryResult {
	accessToken := x.AccessToken(ctx)
	tenantID, err := x.store.TenantID(ctx)
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}
	if accessToken == "" || tenantID == "" {
		return model.DeliveryResult{OK: false, Error: "Xero not connected."}
	}

	payload, err := request.ToJsonReq(struct {
		Invoices []model.Invoice `json:"Invoices"`
	}{Invoices: []model.Invoice{invoice}})
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.invoicesURL, payload)
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("xero-tenant-id", tenantID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	status, body, err := request.Do(req, xeroCallTimeout)
	if err != nil {
		return model.DeliveryResult{OK: false, Error: err.Error()}
	}

	return model.DeliveryResult{
		OK:   status >= 200 && status < 300,
		Code: status,
		Body: request.Truncate(body, invoiceBodyLimit),
	}
}

// LockDates reads the organisation's period-lock and end-of-year-lock
// dates, cached for 12 hours per tenant. Lookup is best-effort: any
// failure yields an empty result.
func (x *XeroClient) LockDates(ctx context.Context) model.LockDates {
	tenantID, err := x.store.TenantID(ctx)
	if err != nil || tenantID == "" {
		return model.LockDates{}
	}

	cacheKey := "payxero:xero:lock:" + tenantID
	var cached model.LockDates
	if hit, err := x.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached
	}

	accessToken := x.AccessToken(ctx)
	if accessToken == "" {
		return model.LockDates{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.organisationsURL, nil)
	if err != nil {
		return model.LockDates{}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("xero-tenant-id", tenantID)
	req.Header.Set("Accept", "application/json")

	status, body, err := request.Do(req, xeroCallTimeout)
	if err != nil || status < 200 || status >= 300 {
		return model.LockDates{}
	}

	var decoded struct {
		Organisations []struct {
			PeriodLockDate    string `json:"PeriodLockDate"`
			EndOfYearLockDate string `json:"EndOfYearLockDate"`
		} `json:"Organisations"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Organisations) == 0 {
		return model.LockDates{}
	}

	org := decoded.Organisations[0]
	out := model.LockDates{
		PeriodLock: dateOnly(org.PeriodLockDate),
		EOYLock:    dateOnly(org.EndOfYearLockDate),
	}
	out.MaxLock = maxDate(out.PeriodLock, out.EOYLock)

	if err := x.cache.Set(ctx, cacheKey, out, lockDatesTTL); err != nil {
		logrus.Error(err)
	}
	return out
}

// Disconnect clears the token set and tenant id unconditionally. The token
// is not revoked with the provider.
func (x *XeroClient) Disconnect(ctx context.Context) error {
	if err := x.store.DeleteTokenSet(ctx); err != nil {
		return err
	}
	return x.store.DeleteTenantID(ctx)
}

// exchangeCode swaps an authorization code for a token set. Failures are
// hard errors; the operator has to restart the connect flow.
func (x *XeroClient) exchangeCode(ctx context.Context, code string) (model.TokenSet, error) {
	conf, err := config.Fetch()
	if err != nil {
		return model.TokenSet{}, err
	}
	if conf.Xero.ClientId == "" || conf.Xero.ClientSecret == "" {
		return model.TokenSet{}, apierror.NewAPIError(apierror.ErrConfiguration,
			"Missing Xero Client ID/Secret.", nil)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", conf.Xero.RedirectUri)

	status, body, err := x.postTokenForm(ctx, conf, form)
	if err != nil {
		return model.TokenSet{}, apierror.NewAPIError(apierror.ErrTransport,
			fmt.Sprintf("Token exchange failed: %v", err), nil)
	}
	if status < 200 || status >= 300 {
		return model.TokenSet{}, apierror.NewHTTPError(apierror.ErrProtocol, status,
			fmt.Sprintf("Token exchange failed (HTTP %d): %s", status, request.Truncate(body, tokenErrBodyLimit)))
	}

	tokens := decodeTokenSet(body)
	tokens.CreatedAt = x.now().Unix()
	return tokens, nil
}

// refreshTokens performs a refresh grant. Every failure degrades to a zero
// token set; the stored tokens are not cleared on a failed refresh. A
// response omitting the refresh token retains the previous one, as the
// provider does not require rotation.
func (x *XeroClient) refreshTokens(ctx context.Context, refreshToken string) model.TokenSet {
	conf, err := config.Fetch()
	if err != nil || conf.Xero.ClientId == "" || conf.Xero.ClientSecret == "" {
		return model.TokenSet{}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := x.postTokenForm(ctx, conf, form)
	if err != nil || status < 200 || status >= 300 {
		return model.TokenSet{}
	}

	tokens := decodeTokenSet(body)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	tokens.CreatedAt = x.now().Unix()
	return tokens
}

func (x *XeroClient) postTokenForm(ctx context.Context, conf *config.Configuration, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(conf.Xero.ClientId, conf.Xero.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return request.Do(req, xeroCallTimeout)
}

// resolveTenantID picks the first entry from the connections endpoint.
// Multi-tenant selection is out of scope. Best-effort: failures yield an
// empty id.
func (x *XeroClient) resolveTenantID(ctx context.Context, accessToken string) string {
	if accessToken == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.connectionsURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := request.Do(req, xeroCallTimeout)
	if err != nil || status < 200 || status >= 300 {
		return ""
	}

	var connections []struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.Unmarshal(body, &connections); err != nil || len(connections) == 0 {
		return ""
	}
	return connections[0].TenantID
}

func decodeTokenSet(body []byte) model.TokenSet {
	var tokens model.TokenSet
	_ = json.Unmarshal(body, &tokens)
	return tokens
}

// dateOnly truncates a provider timestamp (often YYYY-MM-DDTHH:MM:SS) to
// its date part.
func dateOnly(dt string) string {
	dt = strings.TrimSpace(dt)
	if len(dt) >= 10 {
		return dt[:10]
	}
	return dt
}

// maxDate returns the later of two YYYY-MM-DD dates, tolerating either
// being empty or unparseable.
func maxDate(a, b string) string {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	switch {
	case errA != nil && errB != nil:
		return ""
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	default:
		return a
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
