package call

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dLink/cmd/util"
	"github.com/ValentinKolb/dLink/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"time"
)

var (
	// CallCmd calls a single remote procedure
	CallCmd = &cobra.Command{
		Use:   "call [procedure] [input]",
		Short: "Call a remote procedure",
		Long: `Call a remote procedure and print its output. The transport is selected from the execution context
(--context server uses the batched http link, --context browser the persistent socket link).
The input is sent as is, use --input-file to read it from a file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCall,
	}
)

func init() {
	// Add common RPC flags to the call commands
	util.SetupRPCClientFlags(CallCmd)
	util.SetupRPCClientFlags(PerfCmd)

	key := "mutation"
	CallCmd.Flags().Bool(key, false, util.WrapString("Call the procedure as a mutation instead of a query"))
	key = "input-file"
	CallCmd.Flags().String(key, "", util.WrapString("Read the input from a file (- for stdin)"))
	key = "show-strategy"
	CallCmd.Flags().Bool(key, false, util.WrapString("Print the selected transport strategy to stderr"))
}

// newHandle selects the transport for the configured execution context
func newHandle() (*client.Handle, error) {
	ctx, err := util.GetExecutionContext()
	if err != nil {
		return nil, err
	}
	cfg, err := util.GetTransportConfig()
	if err != nil {
		return nil, err
	}
	return client.SelectTransport(ctx, cfg)
}

// readInput returns the input of a call from the arguments or the input file
func readInput(args []string) ([]byte, error) {
	if path := viper.GetString("input-file"); path != "" {
		if path == "-" {
			return io.ReadAll(os.Stdin)
		}
		return os.ReadFile(path)
	}
	if len(args) > 1 {
		return []byte(args[1]), nil
	}
	return nil, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	handle, err := newHandle()
	if err != nil {
		return err
	}
	defer func() {
		_ = handle.Close()
		_ = client.Shutdown()
	}()

	if viper.GetBool("show-strategy") {
		fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s (%s)\n", handle.Strategy(), handle.Link().Name())
	}

	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var output []byte
	if viper.GetBool("mutation") {
		output, err = handle.Mutate(ctx, args[0], input)
	} else {
		output, err = handle.Query(ctx, args[0], input)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
