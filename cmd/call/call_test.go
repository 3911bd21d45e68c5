package call

import (
	"bytes"
	"context"
	"encoding/csv"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/ValentinKolb/dLink/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// startServer starts an http only server with an echo query and an upper mutation
func startServer(t *testing.T) string {
	t.Helper()

	s, err := server.NewRPCServer(common.ServerConfig{
		HTTPEndpoint:  "127.0.0.1:0",
		TimeoutSecond: 5,
	}, serializer.NewJSONSerializer())
	if err != nil {
		t.Fatalf("NewRPCServer failed: %v", err)
	}
	_ = s.Query("echo", func(_ context.Context, in []byte) ([]byte, error) { return in, nil })
	_ = s.Mutation("upper", func(_ context.Context, in []byte) ([]byte, error) {
		return []byte(strings.ToUpper(string(in))), nil
	})

	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Addrs()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "http://" + s.Addrs()[0].String()
}

func configure(t *testing.T, baseURL string) {
	t.Helper()
	t.Cleanup(viper.Reset)

	viper.Set("serializer", "json")
	viper.Set("context", "server")
	viper.Set("base-url", baseURL)
	viper.Set("timeout", 5)
	viper.Set("transport-retries", 1)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := runCall(cmd, args)
	return out.String(), err
}

func TestCallQuery(t *testing.T) {
	configure(t, startServer(t))

	out, err := execute(t, "echo", "hello")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("Expected hello, got %q", out)
	}
}

func TestCallMutation(t *testing.T) {
	configure(t, startServer(t))
	viper.Set("mutation", true)
	viper.Set("show-strategy", true)

	out, err := execute(t, "upper", "hello")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !strings.Contains(out, "strategy: batched (http)") || !strings.Contains(out, "HELLO") {
		t.Errorf("unexpected output %q", out)
	}

	// calling a mutation as a query is rejected by the server
	viper.Set("mutation", false)
	if _, err := execute(t, "upper", "hello"); err == nil {
		t.Error("Expected error calling a mutation as query")
	}
}

func TestCallInputFile(t *testing.T) {
	configure(t, startServer(t))

	path := filepath.Join(t.TempDir(), "input.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	viper.Set("input-file", path)

	out, err := execute(t, "echo")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if strings.TrimSpace(out) != `{"a":1}` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCallConfigurationErrors(t *testing.T) {
	configure(t, "not a url")
	if _, err := execute(t, "echo"); err == nil {
		t.Error("Expected error for invalid base url")
	}

	configure(t, "http://localhost:3000")
	viper.Set("context", "desktop")
	if _, err := execute(t, "echo"); err == nil {
		t.Error("Expected error for unknown context")
	}
}

func TestPerf(t *testing.T) {
	configure(t, startServer(t))
	perfNumThreads = 4
	perfLargeValueSizeKB = 1
	perfSkip = []string{"sequential"}
	t.Cleanup(func() { perfSkip = nil })

	handle, err := newHandle()
	if err != nil {
		t.Fatalf("newHandle failed: %v", err)
	}
	defer handle.Close()

	results := runBenchmarks(handle, "echo")
	if results["sequential"].NsPerOp() != 0 {
		t.Error("Expected skipped sequential benchmark")
	}
	if results["parallel"].N == 0 {
		t.Error("Expected parallel benchmark to run")
	}
	if _, ok := averageBatchSize(handle); !ok {
		t.Error("Expected batch size statistics for the batched link")
	}

	var out bytes.Buffer
	printResult(&out, "sequential", results["sequential"])
	if !strings.Contains(out.String(), "skipped") {
		t.Errorf("unexpected output %q", out.String())
	}

	path := filepath.Join(t.TempDir(), "results.csv")
	if err := writeResultsToCSV(path, results, handle); err != nil {
		t.Fatalf("writeResultsToCSV failed: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != len(perfTests)+1 {
		t.Errorf("Expected %d rows, got %d", len(perfTests)+1, len(rows))
	}
	if rows[1][0] != "sequential" || rows[1][4] != "true" || rows[2][6] != "batched" {
		t.Errorf("unexpected rows %v", rows[1:])
	}
}
