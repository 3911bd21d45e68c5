package cmd

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dLink/cmd/call"
	"github.com/ValentinKolb/dLink/cmd/serve"
	"github.com/ValentinKolb/dLink/cmd/token"
	"github.com/ValentinKolb/dLink/cmd/util"
	"github.com/ValentinKolb/dLink/lib/telemetry"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"time"
)

const (
	Version = "1.0.0"
)

var (
	// flushes the spans of the run, set by the pre run hook
	shutdownTracing = func(context.Context) error { return nil }

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlink",
		Short: "typed RPC client and server with environment aware transport selection",
		Long: fmt.Sprintf(`dLink (v%s)

An RPC client and server written in Go. Server contexts call
procedures over a batched HTTP link, browser contexts over a
single persistent socket.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
				return err
			}
			shutdown, err := telemetry.Setup(cmd.Context(), "dlink", Version, viper.GetString("otel-endpoint"))
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			shutdownTracing = shutdown
			return nil
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dLink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dLink v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(call.PerfCmd)
	RootCmd.AddCommand(token.TokenCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "otel-endpoint"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("OTLP/HTTP endpoint receiving the spans of rpc calls (e.g. http://localhost:4318). Empty disables tracing"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if shutdownErr := shutdownTracing(ctx); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "failed to flush traces: %v\n", shutdownErr)
	}
	cancel()

	if err != nil {
		os.Exit(1)
	}
}
