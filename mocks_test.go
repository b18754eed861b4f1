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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/payxero/payxero/cache"
	"github.com/payxero/payxero/config"
	"github.com/payxero/payxero/internal/vault"
	"github.com/payxero/payxero/model"
	"github.com/payxero/payxero/store"
)

const testSourceBase = "https://shop.example/wp-json"

// testPipeline wires the pipeline against miniredis with a static source
// credential, leaving HTTP to httpmock in each test.
type testPipeline struct {
	store     *store.RedisStore
	source    *SourceClient
	xero      *XeroClient
	deliverer *Deliverer
	redis     redis.UniversalClient
	mr        *miniredis.Miniredis
}

func newTestPipeline(t *testing.T) *testPipeline {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStore(client, vault.New("some-secret"))
	ca := cache.NewCache(client)

	primary := &HTTPDispatcher{
		BaseURL: testSourceBase,
		Credentials: func(ctx context.Context) (model.SourceCredential, error) {
			return model.SourceCredential{
				KeyID:          "key-1",
				ConsumerKey:    "ck_test",
				ConsumerSecret: "cs_test",
			}, nil
		},
	}
	source := NewSourceClient(primary, nil)
	xero := NewXeroClient(st, ca)
	deliverer := NewDeliverer(source, xero, st, client)

	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{SecretKey: "some-secret"},
		Redis:  config.RedisConfig{Dns: mr.Addr()},
		Source: config.SourceConfig{BaseUrl: testSourceBase, PayoutStatuses: config.DefaultPayoutStatuses},
		Xero: config.XeroConfig{
			ClientId:     "client-id",
			ClientSecret: "client-secret",
			Scopes:       config.DefaultScopes,
			RedirectUri:  "https://ops.example/oauth/callback",
		},
		Invoice: config.InvoiceConfig{
			ContactName:      "WooPayments",
			ReferencePrefix:  "WooPay Payout ",
			AccountCode:      "200",
			CurrencyFallback: "USD",
		},
	})

	return &testPipeline{
		store:     st,
		source:    source,
		xero:      xero,
		deliverer: deliverer,
		redis:     client,
		mr:        mr,
	}
}

// connectXero stores a fresh token set and tenant id so the pipeline
// reports connected without touching the token endpoint.
func (p *testPipeline) connectXero(t *testing.T) {
	ctx := context.Background()
	if err := p.store.SaveTenantID(ctx, "tenant-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.store.SaveTokenSet(ctx, model.TokenSet{
		AccessToken:  "fresh-access-token",
		RefreshToken: "refresh-token-1",
		ExpiresIn:    1800,
		TokenType:    "Bearer",
		CreatedAt:    time.Now().Unix(),
	}); err != nil {
		t.Fatal(err)
	}
}
