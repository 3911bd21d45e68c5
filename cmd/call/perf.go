package call

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dLink/cmd/util"
	"github.com/ValentinKolb/dLink/rpc/client"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	// PerfCmd benchmarks a remote procedure over the selected transport
	PerfCmd = &cobra.Command{
		Use:     "perf [procedure]",
		Short:   "Performance testing tool for dLink servers",
		Long:    "Benchmark a query procedure (echo by default) over the transport selected for --context.",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfSkip             = make([]string, 0)

	// perfTests is the order in which the benchmarks run
	perfTests = []string{"sequential", "parallel", "large"}
)

func init() {
	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. sequential,large)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the parallel benchmarks"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How large the input for the large test should be (in KB)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, args []string) error {
	procedure := "echo"
	if len(args) > 0 {
		procedure = args[0]
	}

	handle, err := newHandle()
	if err != nil {
		return err
	}
	defer func() {
		_ = handle.Close()
		_ = client.Shutdown()
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Performance testing tool for dLink servers")

	// Print configuration
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "Context: %s\n", viper.GetString("context"))
	fmt.Fprintf(out, "Strategy: %s (%s)\n", handle.Strategy(), handle.Link().Name())
	fmt.Fprintln(out, util.GetClientConfig().String())
	fmt.Fprintf(out, "Procedure: %s\n", procedure)
	fmt.Fprintf(out, "Threads: %d\n", perfNumThreads)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "starting tests...")

	results := runBenchmarks(handle, procedure)
	for _, test := range perfTests {
		printResult(out, test, results[test])
	}

	if avg, ok := averageBatchSize(handle); ok {
		fmt.Fprintf(out, "\naverage batch size: %.1f calls\n", avg)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, handle); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nresults written to %s\n", csvPath)
	}
	return nil
}

// runBenchmarks runs every benchmark that is not skipped against the procedure
func runBenchmarks(handle *client.Handle, procedure string) map[string]testing.BenchmarkResult {
	results := make(map[string]testing.BenchmarkResult)

	call := func(test string, input []byte) {
		if _, err := handle.Query(context.Background(), procedure, input); err != nil {
			log.Printf("(%s) - error calling %s: %v\n", test, procedure, err)
		}
	}

	results["sequential"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("sequential") {
			return
		}
		input := []byte("test")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			call("sequential", input)
		}
	})

	results["parallel"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("parallel") {
			return
		}
		input := []byte("test")
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				call("parallel", input)
			}
		})
	})

	results["large"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("large") {
			return
		}
		input := make([]byte, perfLargeValueSizeKB*1024)
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				call("large", input)
			}
		})
	})

	return results
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// averageBatchSize reads the batch size histogram of batched handles
func averageBatchSize(handle *client.Handle) (float64, bool) {
	h, ok := handle.Stats().Get("batch.size").(metrics.Histogram)
	if !ok || h.Count() == 0 {
		return 0, false
	}
	return h.Mean(), true
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(out io.Writer, test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Fprintf(out, "%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Fprintf(out, "%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, handle *client.Handle) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()
	avgBatch, _ := averageBatchSize(handle)

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Context", "Strategy", "Link", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"BatchWindowMs", "MaxBatchSize", "AvgBatchSize", "Serializer",
		"Threads", "LargeValueSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range perfTests {
		result := results[test]

		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("context"),
			handle.Strategy().String(),
			handle.Link().Name(),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.Itoa(config.BatchWindowMillis),
			strconv.Itoa(config.MaxBatchSize),
			fmt.Sprintf("%.1f", avgBatch),
			handle.Codec().Name(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
