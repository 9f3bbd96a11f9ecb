package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/scdb/cmd/util"
	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/store"
	"github.com/ValentinKolb/scdb/lib/store/astore"
	"github.com/ValentinKolb/scdb/lib/store/bstore"
)

var (
	log = common.GetLogger(common.LoggerCLI)

	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool comparing the blocking and the async store handle",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU used for the async benchmarks"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the metrics of both handles in Prometheus text format after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 {
		return fmt.Errorf("keys must be positive, got %d", perfKeySpread)
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmark targets
// --------------------------------------------------------------------------

// perfTarget adapts a store handle to the benchmarks
type perfTarget struct {
	name     string
	parallel bool // whether the handle may be used by several goroutines
	set      func(key, value string) error
	get      func(key string) error
	del      func(key string) error
	search   func(term string) error
	metrics  func(w io.Writer)
	close    func() error
}

func newBlockingTarget(s store.IStore) *perfTarget {
	return &perfTarget{
		name: "blocking",
		set:  s.Set,
		get: func(key string) error {
			_, _, err := s.Get(key)
			return err
		},
		del: s.Delete,
		search: func(term string) error {
			_, err := s.Search(term, 0, 10)
			return err
		},
		metrics: s.WritePrometheus,
		close:   s.Close,
	}
}

func newAsyncTarget(s store.IAsyncStore) *perfTarget {
	ctx := context.Background()
	return &perfTarget{
		name:     "async",
		parallel: true,
		set: func(key, value string) error {
			_, err := s.Set(ctx, key, value).Await(ctx)
			return err
		},
		get: func(key string) error {
			_, err := s.Get(ctx, key).Await(ctx)
			return err
		},
		del: func(key string) error {
			_, err := s.Delete(ctx, key).Await(ctx)
			return err
		},
		search: func(term string) error {
			_, err := s.Search(ctx, term, 0, 10).Await(ctx)
			return err
		},
		metrics: s.WritePrometheus,
		close:   s.Close,
	}
}

// perfResult is the result of one benchmark
type perfResult struct {
	name   string
	result testing.BenchmarkResult
	p50    time.Duration
	p99    time.Duration
}

// --------------------------------------------------------------------------
// Run
// --------------------------------------------------------------------------

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for scdb stores")

	baseCfg := util.GetStoreConfig()
	baseCfg.IsSearchEnabled = true

	root := filepath.Join(os.TempDir(), "scdb-perf-"+uuid.NewString())
	defer func() {
		if err := os.RemoveAll(root); err != nil {
			log.Warningf("failed to remove %s: %v", root, err)
		}
	}()

	blockingCfg := baseCfg
	blockingCfg.StorePath = filepath.Join(root, "blocking")
	blocking, err := bstore.New(blockingCfg)
	if err != nil {
		return err
	}

	asyncCfg := baseCfg
	asyncCfg.StorePath = filepath.Join(root, "async")
	async, err := astore.New(asyncCfg)
	if err != nil {
		_ = blocking.Close()
		return err
	}

	targets := []*perfTarget{newBlockingTarget(blocking), newAsyncTarget(async)}
	defer func() {
		for _, target := range targets {
			if err := target.close(); err != nil {
				log.Warningf("failed to close %s store: %v", target.name, err)
			}
		}
	}()

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Engine: %s\n", engineName(baseCfg))
	fmt.Printf("Store: %s\n", root)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Keys: %d\n", perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	var results []perfResult
	for _, target := range targets {
		for _, bench := range benchmarks() {
			name := target.name + "/" + bench.name
			timer := gometrics.GetOrRegisterTimer(name, registry)
			res := perfResult{name: name}
			if !shouldSkip(bench.name) {
				res.result = runBenchmark(target, bench, timer)
				ps := timer.Percentiles([]float64{0.5, 0.99})
				res.p50, res.p99 = time.Duration(ps[0]), time.Duration(ps[1])
			}
			results = append(results, res)
			printResult(res)
		}
	}

	if viper.GetBool("metrics") {
		for _, target := range targets {
			fmt.Printf("\n# metrics of the %s handle\n", target.name)
			target.metrics(os.Stdout)
		}
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, engineName(baseCfg)); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// perfBenchmark is one benchmark. prepare runs before the timer starts,
// op runs once per iteration with a per-goroutine counter.
type perfBenchmark struct {
	name    string
	prepare func(t *perfTarget, iter func(func(string)))
	op      func(t *perfTarget, getKey func(int) string, counter int) error
}

func benchmarks() []perfBenchmark {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	fill := func(t *perfTarget, iter func(func(string))) {
		iter(func(k string) {
			if err := t.set(k, "test"); err != nil {
				log.Warningf("(%s) - error setting key: %v", t.name, err)
			}
		})
	}

	return []perfBenchmark{
		{
			name: "set",
			op: func(t *perfTarget, getKey func(int) string, counter int) error {
				return t.set(getKey(counter), "test")
			},
		},
		{
			name: "set-large",
			op: func(t *perfTarget, getKey func(int) string, counter int) error {
				return t.set(getKey(counter), largeValue)
			},
		},
		{
			name:    "get",
			prepare: fill,
			op: func(t *perfTarget, getKey func(int) string, counter int) error {
				return t.get(getKey(counter))
			},
		},
		{
			name:    "delete",
			prepare: fill,
			op: func(t *perfTarget, getKey func(int) string, counter int) error {
				return t.del(getKey(counter))
			},
		},
		{
			name:    "search",
			prepare: fill,
			op: func(t *perfTarget, _ func(int) string, counter int) error {
				return t.search(fmt.Sprintf("%s-search-%d", perfKeyPrefix, counter%10))
			},
		},
		{
			name:    "mixed",
			prepare: fill,
			op: func(t *perfTarget, getKey func(int) string, counter int) error {
				key := getKey(counter)
				switch counter % 4 {
				case 0:
					return t.set(key, "test")
				case 1:
					return t.get(key)
				case 2:
					return t.del(key)
				default:
					return t.search(key)
				}
			},
		},
	}
}

// runBenchmark runs one benchmark against a target and records every operation in timer
func runBenchmark(target *perfTarget, bench perfBenchmark, timer gometrics.Timer) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		// prepare keys
		getKey, iter := getKeys(bench.name)
		if bench.prepare != nil {
			bench.prepare(target, iter)
		}

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if err := target.del(k); err != nil {
					log.Warningf("(%s/%s) - error deleting key: %v", target.name, bench.name, err)
				}
			})
		})

		do := func(counter int) {
			start := time.Now()
			err := bench.op(target, getKey, counter)
			timer.UpdateSince(start)
			if err != nil {
				log.Warningf("(%s/%s) - error performing operation: %v", target.name, bench.name, err)
			}
		}

		b.ResetTimer()

		// a blocking handle has a single owner
		if !target.parallel {
			for i := 0; i < b.N; i++ {
				do(i)
			}
			return
		}

		b.SetParallelism(perfNumThreads)
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				do(counter)
				counter++
			}
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

func engineName(cfg store.Config) string {
	if cfg.Engine == "" {
		return "maple"
	}
	return string(cfg.Engine)
}

func opsPerSec(result testing.BenchmarkResult) (nsPerOp, ops float64) {
	nsPerOp = math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(res perfResult) {
	if res.result.NsPerOp() == 0 {
		fmt.Printf("%-24sskipped\n", res.name)
		return
	}

	nsPerOp, ops := opsPerSec(res.result)
	fmt.Printf("%-24s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		res.name, nsPerOp, time.Duration(nsPerOp), ops, res.p50, res.p99)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, engineName string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Skipped",
		"Engine", "Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, res := range results {
		var nsPerOp, ops float64
		skipped := "true"
		if res.result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp, ops = opsPerSec(res.result)
		}

		row := []string{
			res.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", ops),
			res.p50.String(),
			res.p99.String(),
			skipped,
			engineName,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}

	return writer.Error()
}
