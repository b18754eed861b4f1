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

// Package store persists the pipeline's shared mutable state in a single
// external key-value store: OAuth token set, tenant id, delivery states,
// invoice metadata, the encrypted source credential and the one-time OAuth
// anti-forgery state. There are no transactional multi-key guarantees;
// callers needing at-most-once delivery semantics serialize per payout id
// with a lock.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/payxero/payxero/internal/vault"
	"github.com/payxero/payxero/model"
)

const (
	keyTokens           = "payxero:xero:tokens"
	keyTenant           = "payxero:xero:tenant"
	keyOAuthState       = "payxero:xero:oauth_state"
	keyDeliveryStates   = "payxero:delivery_states"
	keyInvoiceMeta      = "payxero:invoice_meta"
	keyCredential       = "payxero:source:credential"
	keyCredentialNotice = "payxero:source:key_notice"
)

// Store is the key-value persistence surface injected into each component.
type Store interface {
	TokenSet(ctx context.Context) (model.TokenSet, error)
	SaveTokenSet(ctx context.Context, tokens model.TokenSet) error
	DeleteTokenSet(ctx context.Context) error

	TenantID(ctx context.Context) (string, error)
	SaveTenantID(ctx context.Context, tenantID string) error
	DeleteTenantID(ctx context.Context) error

	OAuthState(ctx context.Context) (string, error)
	SaveOAuthState(ctx context.Context, state string) error
	DeleteOAuthState(ctx context.Context) error

	DeliveryState(ctx context.Context, payoutID string) (model.DeliveryState, error)
	SaveDeliveryState(ctx context.Context, payoutID, state string) error
	DeliveryStates(ctx context.Context) (map[string]model.DeliveryState, error)

	InvoiceMeta(ctx context.Context, payoutID string) (model.InvoiceMeta, error)
	SaveInvoiceMeta(ctx context.Context, meta model.InvoiceMeta) error
	InvoiceMetas(ctx context.Context) (map[string]model.InvoiceMeta, error)

	EnsureSourceCredential(ctx context.Context) (model.SourceCredential, error)
	CredentialNotice(ctx context.Context) (*model.CredentialNotice, error)
	ClearCredentialNotice(ctx context.Context) error
}

// storedCredential is the at-rest shape of the source credential. Both
// secrets are vault ciphertexts.
type storedCredential struct {
	KeyID             string `json:"key_id"`
	ConsumerKeyEnc    string `json:"consumer_key_enc"`
	ConsumerSecretEnc string `json:"consumer_secret_enc"`
}

// RedisStore implements Store over redis.
type RedisStore struct {
	client redis.UniversalClient
	vault  *vault.Vault
	rand   io.Reader        // injectable for deterministic tests
	now    func() time.Time // injectable clock
}

func NewRedisStore(client redis.UniversalClient, v *vault.Vault) *RedisStore {
	return &RedisStore{
		client: client,
		vault:  v,
		rand:   rand.Reader,
		now:    time.Now,
	}
}

// WithRand overrides the randomness source used for credential minting.
func (s *RedisStore) WithRand(r io.Reader) *RedisStore {
	s.rand = r
	return s
}

// WithClock overrides the clock used for timestamps.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", key)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	return true, nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return errors.Wrapf(s.client.Set(ctx, key, raw, 0).Err(), "writing %s", key)
}

func (s *RedisStore) TokenSet(ctx context.Context) (model.TokenSet, error) {
	var tokens model.TokenSet
	_, err := s.getJSON(ctx, keyTokens, &tokens)
	return tokens, err
}

func (s *RedisStore) SaveTokenSet(ctx context.Context, tokens model.TokenSet) error {
	return s.setJSON(ctx, keyTokens, tokens)
}

func (s *RedisStore) DeleteTokenSet(ctx context.Context) error {
	return s.client.Del(ctx, keyTokens).Err()
}

func (s *RedisStore) TenantID(ctx context.Context) (string, error) {
	tenant, err := s.client.Get(ctx, keyTenant).Result()
	if err == redis.Nil {
		return "", nil
	}
	return tenant, err
}

func (s *RedisStore) SaveTenantID(ctx context.Context, tenantID string) error {
	return s.client.Set(ctx, keyTenant, tenantID, 0).Err()
}

func (s *RedisStore) DeleteTenantID(ctx context.Context) error {
	return s.client.Del(ctx, keyTenant).Err()
}

func (s *RedisStore) OAuthState(ctx context.Context) (string, error) {
	state, err := s.client.Get(ctx, keyOAuthState).Result()
	if err == redis.Nil {
		return "", nil
	}
	return state, err
}

func (s *RedisStore) SaveOAuthState(ctx context.Context, state string) error {
	return s.client.Set(ctx, keyOAuthState, state, 0).Err()
}

func (s *RedisStore) DeleteOAuthState(ctx context.Context) error {
	return s.client.Del(ctx, keyOAuthState).Err()
}

func (s *RedisStore) DeliveryState(ctx context.Context, payoutID string) (model.DeliveryState, error) {
	var state model.DeliveryState
	raw, err := s.client.HGet(ctx, keyDeliveryStates, payoutID).Result()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	err = json.Unmarshal([]byte(raw), &state)
	return state, err
}

// SaveDeliveryState overwrites the delivery record for a payout. Last write
// wins.
func (s *RedisStore) SaveDeliveryState(ctx context.Context, payoutID, state string) error {
	record := model.DeliveryState{
		PayoutID:  payoutID,
		State:     state,
		UpdatedAt: s.now().UTC(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, keyDeliveryStates, payoutID, raw).Err()
}

func (s *RedisStore) DeliveryStates(ctx context.Context) (map[string]model.DeliveryState, error) {
	raw, err := s.client.HGetAll(ctx, keyDeliveryStates).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.DeliveryState, len(raw))
	for id, entry := range raw {
		var state model.DeliveryState
		if err := json.Unmarshal([]byte(entry), &state); err != nil {
			continue
		}
		out[id] = state
	}
	return out, nil
}

func (s *RedisStore) InvoiceMeta(ctx context.Context, payoutID string) (model.InvoiceMeta, error) {
	var meta model.InvoiceMeta
	raw, err := s.client.HGet(ctx, keyInvoiceMeta, payoutID).Result()
	if err == redis.Nil {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal([]byte(raw), &meta)
	return meta, err
}

func (s *RedisStore) SaveInvoiceMeta(ctx context.Context, meta model.InvoiceMeta) error {
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, keyInvoiceMeta, meta.PayoutID, raw).Err()
}

func (s *RedisStore) InvoiceMetas(ctx context.Context) (map[string]model.InvoiceMeta, error) {
	raw, err := s.client.HGetAll(ctx, keyInvoiceMeta).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.InvoiceMeta, len(raw))
	for id, entry := range raw {
		var meta model.InvoiceMeta
		if err := json.Unmarshal([]byte(entry), &meta); err != nil {
			continue
		}
		out[id] = meta
	}
	return out, nil
}

// EnsureSourceCredential returns the decrypted read-only key pair, minting
// and persisting a fresh one when the stored record is missing or no longer
// decrypts. Regeneration records a one-time notice for the operator
// surface.
func (s *RedisStore) EnsureSourceCredential(ctx context.Context) (model.SourceCredential, error) {
	var stored storedCredential
	found, err := s.getJSON(ctx, keyCredential, &stored)
	if err != nil {
		return model.SourceCredential{}, err
	}
	if found {
		ck := s.vault.Decrypt(stored.ConsumerKeyEnc)
		cs := s.vault.Decrypt(stored.ConsumerSecretEnc)
		if ck != "" && cs != "" {
			return model.SourceCredential{
				KeyID:          stored.KeyID,
				ConsumerKey:    ck,
				ConsumerSecret: cs,
			}, nil
		}
		// Stored ciphertext no longer decrypts; treat as absent and mint a
		// replacement.
	}

	cred, err := s.mintCredential()
	if err != nil {
		return model.SourceCredential{}, err
	}

	ckEnc, err := s.vault.Encrypt(cred.ConsumerKey)
	if err != nil {
		return model.SourceCredential{}, err
	}
	csEnc, err := s.vault.Encrypt(cred.ConsumerSecret)
	if err != nil {
		return model.SourceCredential{}, err
	}

	if err := s.setJSON(ctx, keyCredential, storedCredential{
		KeyID:             cred.KeyID,
		ConsumerKeyEnc:    ckEnc,
		ConsumerSecretEnc: csEnc,
	}); err != nil {
		return model.SourceCredential{}, err
	}

	if err := s.setJSON(ctx, keyCredentialNotice, model.CredentialNotice{
		KeyID:     cred.KeyID,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return model.SourceCredential{}, err
	}

	return cred, nil
}

func (s *RedisStore) mintCredential() (model.SourceCredential, error) {
	ck, err := randomHex(s.rand, 20)
	if err != nil {
		return model.SourceCredential{}, errors.Wrap(err, "minting consumer key")
	}
	cs, err := randomHex(s.rand, 20)
	if err != nil {
		return model.SourceCredential{}, errors.Wrap(err, "minting consumer secret")
	}
	return model.SourceCredential{
		KeyID:          uuid.New().String(),
		ConsumerKey:    "ck_" + ck,
		ConsumerSecret: "cs_" + cs,
	}, nil
}

func (s *RedisStore) CredentialNotice(ctx context.Context) (*model.CredentialNotice, error) {
	var notice model.CredentialNotice
	found, err := s.getJSON(ctx, keyCredentialNotice, &notice)
	if err != nil || !found {
		return nil, err
	}
	return &notice, nil
}

func (s *RedisStore) ClearCredentialNotice(ctx context.Context) error {
	return s.client.Del(ctx, keyCredentialNotice).Err()
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
