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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payxero/payxero/internal/apierror"
)

const depositsURL = testSourceBase + "/wc/v3/payments/deposits"

func activateMock(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestListDepositsNormalizesEnvelope(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)
	ctx := context.Background()

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"data":[{"id":"po_1"},{"id":"po_2"},{"id":"po_3"}]}`))

	deposits, err := p.source.ListDeposits(ctx, 1, 25)
	require.NoError(t, err)
	require.Len(t, deposits, 3)
	assert.Equal(t, "po_1", deposits[0].ID)

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"id":"po_1"},{"id":"po_2"},{"id":"po_3"}]`))

	deposits, err = p.source.ListDeposits(ctx, 1, 25)
	require.NoError(t, err)
	require.Len(t, deposits, 3)
	assert.Equal(t, "po_3", deposits[2].ID)
}

func TestListDepositsInvalidJSON(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusOK, `<html>maintenance</html>`))

	_, err := p.source.ListDeposits(context.Background(), 1, 25)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrProtocol, apierror.CodeOf(err))
}

func TestGetDepositByIDNotFoundIsEmpty(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/po_missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"resource_not_found"}`))

	deposit, err := p.source.GetDepositByID(context.Background(), "po_missing")
	require.NoError(t, err)
	assert.Empty(t, deposit.ID)
}

func TestGetDepositByIDRouteMissing(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/po_1",
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"rest_no_route"}`))

	_, err := p.source.GetDepositByID(context.Background(), "po_1")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrProtocol, apierror.CodeOf(err))
	assert.Contains(t, err.Error(), "route missing")
}

func TestGetDepositByIDAuthFailure(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/po_1",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"code":"rest_forbidden"}`))

	_, err := p.source.GetDepositByID(context.Background(), "po_1")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrAuthorization, apierror.CodeOf(err))
}

func TestResolveDepositIDNativePrefixSkipsNetwork(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	got := p.source.ResolveDepositID(context.Background(), "po_already_native")
	assert.Equal(t, "po_already_native", got)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestResolveDepositIDBlankInput(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	assert.Equal(t, "", p.source.ResolveDepositID(context.Background(), "   "))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestResolveDepositIDDirectFetch(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/dep-direct",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"po_55"}`))

	got := p.source.ResolveDepositID(context.Background(), "dep-direct")
	assert.Equal(t, "po_55", got)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestResolveDepositIDByBankReference(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/XYZ321",
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"resource_not_found"}`))
	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"id":"po_8","bank_reference":"ABC111"},{"id":"po_9","bankReference":"XYZ321"}]`))

	got := p.source.ResolveDepositID(context.Background(), "XYZ321")
	assert.Equal(t, "po_9", got)
}

func TestResolveDepositIDFallsThroughAfterPageCap(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL+"/UNKNOWN-REF",
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"resource_not_found"}`))

	// Every page is full, none matches; the scan must stop at the page cap.
	httpmock.RegisterResponder("GET", depositsURL,
		func(req *http.Request) (*http.Response, error) {
			page := req.URL.Query().Get("page")
			body := "["
			for i := 0; i < resolvePageSize; i++ {
				if i > 0 {
					body += ","
				}
				body += fmt.Sprintf(`{"id":"po_p%s_%d","bank_reference":"%s"}`,
					page, i, gofakeit.LetterN(12))
			}
			body += "]"
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	got := p.source.ResolveDepositID(context.Background(), "UNKNOWN-REF")
	assert.Equal(t, "UNKNOWN-REF", got)
	assert.Equal(t, 1+resolveMaxPages, httpmock.GetTotalCallCount())
}

func TestListTransactionsPagesUntilShortPage(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", testSourceBase+"/wc/v3/payments/reports/transactions",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "po_1", req.URL.Query().Get("deposit_id"))
			size := transactionsPageSize
			if req.URL.Query().Get("page") == "2" {
				size = 30
			}
			body := "["
			for i := 0; i < size; i++ {
				if i > 0 {
					body += ","
				}
				body += fmt.Sprintf(`{"transaction_id":"txn_%d","type":"charge"}`, i)
			}
			body += "]"
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	rows, err := p.source.ListTransactionsForDeposit(context.Background(), "po_1")
	require.NoError(t, err)
	assert.Len(t, rows, transactionsPageSize+30)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestDispatchFallsBackOnLoopbackFailure(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewErrorResponder(errors.New("connect: connection refused")))

	fallback := &InternalDispatcher{Handler: http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"po_internal"}]`))
		})}
	source := NewSourceClient(p.source.primary, fallback)

	deposits, err := source.ListDeposits(context.Background(), 1, 25)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, "po_internal", deposits[0].ID)
}

func TestDispatchDoesNotFallBackOnProtocolError(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	fallback := &InternalDispatcher{Handler: http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":"po_internal"}]`))
		})}
	source := NewSourceClient(p.source.primary, fallback)

	_, err := source.ListDeposits(context.Background(), 1, 25)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrProtocol, apierror.CodeOf(err))
}

func TestLooksLikeLoopbackFailure(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"cURL error 7: Failed to connect: Connection refused", true},
		{"request Timed Out after 30000ms", true},
		{"dial tcp: lookup shop.example: no such host", true},
		{"TRANSPORT_ERROR: payments loopback REST request failed", true},
		{"loopback requests are disabled on this host", true},
		{"network is unreachable", true},
		{"payments REST error (HTTP 500): boom", false},
		{"invalid JSON for deposit list", false},
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, LooksLikeLoopbackFailure(tc.message), tc.message)
	}
}

func TestDepositsRoutesAvailable(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusOK, `[]`))
	assert.True(t, p.source.DepositsRoutesAvailable(context.Background()))

	httpmock.RegisterResponder("GET", depositsURL,
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"rest_no_route"}`))
	assert.False(t, p.source.DepositsRoutesAvailable(context.Background()))
}

func TestHTTPDispatcherSendsBasicAuth(t *testing.T) {
	activateMock(t)
	p := newTestPipeline(t)

	var gotAuth, gotAgent string
	httpmock.RegisterResponder("GET", depositsURL,
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			gotAgent = req.Header.Get("User-Agent")
			return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
		})

	_, err := p.source.ListDeposits(context.Background(), 1, 25)
	require.NoError(t, err)
	assert.Equal(t, "Basic Y2tfdGVzdDpjc190ZXN0", gotAuth)
	assert.Equal(t, "payxero/"+Version, gotAgent)
}
