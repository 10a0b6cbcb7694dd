package main

import (
	"fmt"
	"net/url"

	"github.com/entraops/azuregraph/internal/config"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the device code flow",
	Long: `Runs the device code flow against the configured tenant and verifies the
session by fetching the signed-in user's profile. Requires delegated
permissions; add openid and profile to graph_scopes if an ID token is needed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Device code is the whole point of this command, regardless of config.
		cfg.AuthFlow = config.FlowDeviceCode

		rt, err := getRuntime(cmd.Context())
		if err != nil {
			return err
		}

		me := struct {
			ID                string `json:"id"`
			DisplayName       string `json:"displayName"`
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
		}{}

		query := url.Values{}
		query.Set("$select", "id,displayName,mail,userPrincipalName")
		if err := rt.Client().GetJSON(cmd.Context(), "/me", query, &me); err != nil {
			return fmt.Errorf("fetch signed-in profile: %w", err)
		}

		identity := me.Mail
		if identity == "" {
			identity = me.UserPrincipalName
		}
		fmt.Printf("Signed in as %s (%s)\n", me.DisplayName, identity)
		return nil
	},
}
