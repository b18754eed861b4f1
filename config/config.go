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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"

	// DefaultScopes is the scope set requested during connect when the
	// operator has not overridden it. offline_access is required to be
	// issued a refresh token.
	DefaultScopes = "offline_access accounting.transactions accounting.settings openid profile email"

	DefaultContactName     = "WooPayments"
	DefaultReferencePrefix = "WooPay Payout "
	DefaultPayoutStatuses  = "paid"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SecretKey string `json:"secret_key" envconfig:"PAYXERO_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"PAYXERO_SERVER_PORT"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PAYXERO_REDIS_DNS"`
}

// SourceConfig points at the payment platform's REST surface. BaseUrl is
// the loopback REST root, e.g. https://shop.example/wp-json.
type SourceConfig struct {
	BaseUrl        string `json:"base_url" envconfig:"PAYXERO_SOURCE_BASE_URL"`
	PayoutStatuses string `json:"payout_statuses" envconfig:"PAYXERO_SOURCE_PAYOUT_STATUSES"`
}

// XeroConfig holds the operator's Xero app credentials and OAuth settings.
type XeroConfig struct {
	ClientId     string `json:"client_id" envconfig:"PAYXERO_XERO_CLIENT_ID"`
	ClientSecret string `json:"client_secret" envconfig:"PAYXERO_XERO_CLIENT_SECRET"`
	Scopes       string `json:"scopes" envconfig:"PAYXERO_XERO_SCOPES"`
	RedirectUri  string `json:"redirect_uri" envconfig:"PAYXERO_XERO_REDIRECT_URI"`
}

// ValidateForConnect checks the fields the connect flow cannot start without.
func (x XeroConfig) ValidateForConnect() error {
	return validation.ValidateStruct(&x,
		validation.Field(&x.ClientId, validation.Required),
		validation.Field(&x.ClientSecret, validation.Required),
		validation.Field(&x.RedirectUri, validation.Required),
	)
}

// InvoiceConfig is the operator-configured invoice template.
type InvoiceConfig struct {
	ContactName      string `json:"contact_name" envconfig:"PAYXERO_INVOICE_CONTACT_NAME"`
	ReferencePrefix  string `json:"reference_prefix" envconfig:"PAYXERO_INVOICE_REFERENCE_PREFIX"`
	ReferenceSuffix  string `json:"reference_suffix" envconfig:"PAYXERO_INVOICE_REFERENCE_SUFFIX"`
	AccountCode      string `json:"account_code" envconfig:"PAYXERO_INVOICE_ACCOUNT_CODE"`
	CurrencyFallback string `json:"currency_fallback" envconfig:"PAYXERO_INVOICE_CURRENCY_FALLBACK"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string        `json:"project_name" envconfig:"PAYXERO_PROJECT_NAME"`
	Server       ServerConfig  `json:"server"`
	Redis        RedisConfig   `json:"redis"`
	Source       SourceConfig  `json:"source"`
	Xero         XeroConfig    `json:"xero"`
	Invoice      InvoiceConfig `json:"invoice"`
	Notification Notification  `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payxero", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payxero.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "PayXero"
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Server.SecretKey == "" {
		log.Println("Error: Server secret key is empty. It's a required field.")
		return errors.New("server secret key is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Source.BaseUrl = strings.TrimSuffix(strings.TrimSpace(cnf.Source.BaseUrl), "/")
	cnf.Xero.ClientId = strings.TrimSpace(cnf.Xero.ClientId)
	cnf.Xero.ClientSecret = strings.TrimSpace(cnf.Xero.ClientSecret)
	cnf.Invoice.AccountCode = strings.TrimSpace(cnf.Invoice.AccountCode)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Source.PayoutStatuses == "" {
		cnf.Source.PayoutStatuses = DefaultPayoutStatuses
	}
	if cnf.Xero.Scopes == "" {
		cnf.Xero.Scopes = DefaultScopes
	}
	if cnf.Invoice.ContactName == "" {
		cnf.Invoice.ContactName = DefaultContactName
	}
	if cnf.Invoice.ReferencePrefix == "" {
		cnf.Invoice.ReferencePrefix = DefaultReferencePrefix
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
