package util

import (
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/client"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds the transport selection and link tuning flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "context"
	cmd.PersistentFlags().String(key, "server", WrapString("Execution context of the client (server or browser). Server contexts use the batched http link, browser contexts the persistent socket link"))

	key = "base-url"
	cmd.PersistentFlags().String(key, "", WrapString("Base url of the RPC server. If empty it is derived from --public-host and --port"))

	key = "public-host"
	cmd.PersistentFlags().String(key, "", WrapString("Public host name of the deployment (e.g. my-app.example.com), used to derive the base url of server contexts"))

	key = "port"
	cmd.PersistentFlags().Int(key, common.DefaultPort, WrapString("Local port used to derive the base url if no public host is set"))

	key = "ws-url"
	cmd.PersistentFlags().String(key, "", WrapString(fmt.Sprintf("Socket url for browser contexts (ws://, wss://, tcp:// or unix://). Defaults to %s", common.DefaultWSURL)))

	key = "header"
	cmd.PersistentFlags().StringArray(key, nil, WrapString("Inbound request header forwarded by server contexts (name=value, can be repeated, values may contain commas)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a call"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 1, WrapString("How many times the link tries to send a request"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections of the socket link"))

	key = "batch-window"
	cmd.PersistentFlags().Int(key, 0, WrapString("Batch window of the http link in milliseconds (0 selects the default of 2ms)"))

	key = "batch-max"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of calls per batch (0 selects the default of 64)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the socket link (in KB, ignored for http and ws)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the socket link (in KB, ignored for http and ws)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp:// socket urls only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp:// socket urls only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time in seconds (tcp:// socket urls only)"))
}

// InitConfig loads .env files and binds environment variables (DLINK_<FLAG>)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dlink")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the link tuning from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		BatchWindowMillis:      viper.GetInt("batch-window"),
		MaxBatchSize:           viper.GetInt("batch-max"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		},
	}
}

// GetExecutionContext creates the execution context from the --context and --header flags
func GetExecutionContext() (common.ExecutionContext, error) {
	kind, ok := common.ParseExecutionKind(viper.GetString("context"))
	if !ok {
		return common.ExecutionContext{}, &common.ConfigurationError{
			Field:  "context",
			Reason: fmt.Sprintf("%q (expected server or browser)", viper.GetString("context")),
		}
	}
	if kind == common.ExecBrowser {
		return common.BrowserContext(), nil
	}

	headers, err := ParseHeaders(viper.GetStringSlice("header"))
	if err != nil {
		return common.ExecutionContext{}, err
	}
	return common.ServerContext(headers), nil
}

// GetTransportConfig creates the transport selector input from the flags
func GetTransportConfig() (client.TransportConfig, error) {
	codec, err := GetSerializer()
	if err != nil {
		return client.TransportConfig{}, err
	}

	kind, _ := common.ParseExecutionKind(viper.GetString("context"))
	baseURL := viper.GetString("base-url")
	if baseURL == "" {
		baseURL = common.ResolveBaseURL(kind, viper.GetString("public-host"), viper.GetInt("port"))
	}

	return client.TransportConfig{
		BaseURL: baseURL,
		WSURL:   viper.GetString("ws-url"),
		Codec:   codec,
		Client:  *GetClientConfig(),
	}, nil
}

// ParseHeaders parses name=value pairs. Names are lower-cased.
func ParseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (expected name=value)", pair)
		}
		headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// GetSerializer creates the serializer selected by the --serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}
