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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// pipelineCommands are the one-shot operator verbs: connect, send, list,
// status, disconnect.
func pipelineCommands(app *payxeroInstance) []*cobra.Command {
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "print the Xero authorization URL to open in a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			authorizeURL, err := app.px.ConnectURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(authorizeURL)
			return nil
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "drop the stored Xero connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.px.Disconnect(cmd.Context())
		},
	}

	sendCmd := &cobra.Command{
		Use:   "send [payout-id]",
		Short: "deliver one payout to Xero as a draft invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := app.px.SendPayout(cmd.Context(), args[0])
			printJSON(result)
			if !result.OK {
				os.Exit(1)
			}
			return nil
		},
	}

	depositsCmd := &cobra.Command{
		Use:   "deposits",
		Short: "list payouts with their delivery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("pagesize")

			deposits, err := app.px.Deposits(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			printJSON(deposits)
			return nil
		},
	}
	depositsCmd.Flags().Int("page", 1, "page to fetch")
	depositsCmd.Flags().Int("pagesize", 25, "payouts per page")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "show connection and route health",
		RunE: func(cmd *cobra.Command, args []string) error {
			printJSON(app.px.Status(cmd.Context()))
			return nil
		},
	}

	return []*cobra.Command{connectCmd, disconnectCmd, sendCmd, depositsCmd, statusCmd}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(out))
}
