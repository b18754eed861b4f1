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
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/payxero/payxero/api"
)

// serveCommands runs the operator HTTP surface, including the OAuth
// callback endpoint that the provider redirects to.
func serveCommands(app *payxeroInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the payxero server",
		Run: func(cmd *cobra.Command, args []string) {
			router := api.NewAPI(app.px).Router()

			port := app.cnf.Server.Port
			logrus.Infof("starting payxero server on :%s", port)
			if err := router.Run(fmt.Sprintf(":%s", port)); err != nil {
				logrus.Fatal(err)
			}
		},
	}
}
