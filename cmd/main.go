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

package main

import (
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/payxero/payxero"
	"github.com/payxero/payxero/config"
)

// payxeroInstance holds the pipeline and its configuration for commands.
type payxeroInstance struct {
	px  *payxero.PayXero
	cnf *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the pipeline before any
// command executes.
func preRun(app *payxeroInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("payxero.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		px, err := payxero.NewPayXero()
		if err != nil {
			return err
		}

		app.px = px
		app.cnf = cnf
		return nil
	}
}

func newCLI() *cobra.Command {
	var app payxeroInstance

	rootCmd := &cobra.Command{
		Use:               "payxero",
		Short:             "deliver payment-platform payouts to Xero as draft invoices",
		PersistentPreRunE: preRun(&app),
	}

	rootCmd.AddCommand(serveCommands(&app))
	rootCmd.AddCommand(pipelineCommands(&app)...)

	return rootCmd
}

func main() {
	defer recoverPanic()
	if err := newCLI().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
