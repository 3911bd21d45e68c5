package serve

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dLink/cmd/util"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dLink server",
		Long:    `Start the dLink server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DLINK_<flag> (e.g. DLINK_HTTP_ENDPOINT=:3000)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "http-endpoint"
	ServeCmd.PersistentFlags().String(key, fmt.Sprintf(":%d", common.DefaultPort), cmdUtil.WrapString("The address of the batched http endpoint (POST "+common.RPCEndpointSuffix+" and GET /metrics). Empty disables it"))

	key = "socket-endpoint"
	ServeCmd.PersistentFlags().String(key, "ws://:3001", cmdUtil.WrapString("The url of the persistent socket endpoint (ws://host:port/path, tcp://host:port or unix:///path). Empty disables it"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("Maximum number of calls handled concurrently per connection (or per batch)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("Read and write buffer size of socket connections (in KB)"))

	key = "session-secret"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Secret used to verify session tokens. Empty disables sessions"))

	key = "allowed-origins"
	ServeCmd.PersistentFlags().StringSlice(key, nil, cmdUtil.WrapString("Origins besides the server's own host that may open browser sockets (e.g. https://app.example.com). \"*\" allows every origin"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.HTTPEndpoint = viper.GetString("http-endpoint")
	serveCmdConfig.SocketEndpoint = viper.GetString("socket-endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxWorkersPerConn = viper.GetInt("workers")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size") * 1024
	serveCmdConfig.SessionSecret = viper.GetString("session-secret")
	serveCmdConfig.AllowedOrigins = viper.GetStringSlice("allowed-origins")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.HTTPEndpoint == "" && serveCmdConfig.SocketEndpoint == "" {
		return fmt.Errorf("at least one of --http-endpoint and --socket-endpoint is required")
	}
	if serveCmdConfig.TimeoutSecond <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

// run starts the dLink server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	serv, err := server.NewRPCServer(*serveCmdConfig, s)
	if err != nil {
		return err
	}
	if err := RegisterProcedures(serv); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = serv.Close()
	}()

	err = serv.Serve()
	stop()
	return err
}
