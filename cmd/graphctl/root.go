package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/entraops/azuregraph/internal/app"
	"github.com/entraops/azuregraph/internal/config"
	"github.com/entraops/azuregraph/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log logger.Logger

	runtime *app.Runtime
)

var rootCmd = &cobra.Command{
	Use:   "graphctl",
	Short: "Connect to and work with the Microsoft Graph API",
	Long: `graphctl wraps Microsoft Graph API calls for Azure AD B2C tenants:
sign in with application or device code credentials, manage local user
accounts, and inspect user-flow attributes. GET responses are cached
locally to avoid redundant network calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log, err = logger.Init(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if runtime != nil {
			runtime.Close()
		}
		logger.Close()
	},
}

// Execute runs the root command with the given base context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// getRuntime wires the runtime on first use so commands that fail argument
// validation never touch the network.
func getRuntime(ctx context.Context) (*app.Runtime, error) {
	if runtime != nil {
		return runtime, nil
	}

	rt, err := app.NewRuntime(ctx, cfg, log, devicePrompt)
	if err != nil {
		return nil, err
	}
	runtime = rt
	return rt, nil
}

// devicePrompt shows the device code instructions during the devicecode flow.
func devicePrompt(userCode, verificationURI string, expiresAt time.Time) {
	fmt.Println("Please enter the following code in your web browser:")
	fmt.Println(userCode)
	if !expiresAt.IsZero() {
		fmt.Printf("This code is valid until %s\n", expiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Sign in at %s\n", verificationURI)
	fmt.Println("Waiting for sign-in to complete...")
}

// printJSON renders the value as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(attributesCmd)
}
