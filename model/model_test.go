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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountMajor(t *testing.T) {
	cases := []struct {
		amount json.Number
		want   string
	}{
		{"4599", "45.99"},
		{"100", "1"},
		{"1", "0.01"},
		{"0", "0"},
		{"", "0"},
		{"-250", "-2.5"},
		{"4599.0", "45.99"},
	}

	for _, tc := range cases {
		got, err := Deposit{Amount: tc.amount}.AmountMajor()
		require.NoError(t, err, string(tc.amount))
		assert.Equal(t, tc.want, got.String(), string(tc.amount))
	}

	_, err := Deposit{Amount: "not-a-number"}.AmountMajor()
	assert.Error(t, err)
}

func TestBankReferencesOrder(t *testing.T) {
	d := Deposit{
		BankReference: "ref-snake",
		BankRefID:     "ref-camel-id",
		BankRefCamel:  "ref-camel",
	}
	assert.Equal(t, []string{"ref-snake", "ref-camel-id", "ref-camel"}, d.BankReferences())
	assert.Empty(t, Deposit{}.BankReferences())
}

func TestDepositDecodesNumericAmount(t *testing.T) {
	var d Deposit
	require.NoError(t, json.Unmarshal([]byte(`{"id":"po_1","amount":4599,"currency":"aud"}`), &d))
	got, err := d.AmountMajor()
	require.NoError(t, err)
	assert.Equal(t, "45.99", got.String())
}

func TestTokenSetExpiresAt(t *testing.T) {
	assert.Equal(t, int64(0), TokenSet{}.ExpiresAt())
	assert.Equal(t, int64(0), TokenSet{ExpiresIn: 1800}.ExpiresAt())
	assert.Equal(t, int64(2000), TokenSet{CreatedAt: 200, ExpiresIn: 1800}.ExpiresAt())
}
