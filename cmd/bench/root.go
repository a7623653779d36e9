package bench

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/qtable/cmd/util"
	"github.com/ValentinKolb/qtable/lib/store"
	"github.com/ValentinKolb/qtable/lib/store/lstore"
	"github.com/ValentinKolb/qtable/lib/table"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the table through the local key-value store",
		Long:    util.WrapString("Runs a fixed set of parallel benchmarks (set, get, has, delete, mixed) against a local store backed by a table configured with the global table flags."),
		RunE:    run,
		PreRunE: processBenchConfig,
	}
	benchKeyPrefix        = "__bench"
	benchLargeValueSizeKB = 100
	benchNumThreads       = 10
	benchKeySpread        = 100
	benchSampleEvery      = 64
	benchSkip             = make([]string, 0)

	plog = logger.GetLogger("cli")
)

// benchmark is one named entry of the benchmark suite
type benchmark struct {
	name string
	fn   func(b *testing.B, s store.IStore, timer gometrics.Timer)
}

func init() {
	key := "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Parallelism multiplier for the benchmarks"))
	key = "large-value-size"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "sample-every"
	BenchCmd.Flags().Int(key, 64, util.WrapString("Record the latency of every n-th operation"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchLargeValueSizeKB = viper.GetInt("large-value-size")
	benchKeySpread = max(viper.GetInt("keys"), 1)
	benchNumThreads = max(viper.GetInt("threads"), 1)
	benchSampleEvery = max(viper.GetInt("sample-every"), 1)
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	opts, tracker, err := util.GetTableOptions("bench")
	if err != nil {
		return err
	}

	fmt.Println("Benchmark for the qtable local store")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.OptionsString(opts))
	fmt.Printf("Threads: %d\n", benchNumThreads)
	fmt.Println()

	s, err := lstore.NewLocalStore(opts)
	if err != nil {
		return err
	}

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range suite() {
		timer := gometrics.GetOrRegisterTimer(bm.name, registry)
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}
			b.SetParallelism(benchNumThreads)
			bm.fn(b, s, timer)
		})
		results[bm.name] = result
		printResult(bm.name, result, timer)
	}

	info, err := s.Info()
	if err == nil {
		fmt.Println()
		fmt.Printf("Table: live=%d pending=%d reclaimed=%d deferrals=%d epochs=%d/%d\n",
			info.Live, info.Pending, info.Reclaimed, info.Deferrals, info.Started, info.Completed)
	}

	if err := s.Close(); err != nil {
		plog.Warningf("closing store: %v", err)
	}
	fmt.Printf("Outstanding allocations after close: %d\n", tracker.Total())

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, registry, opts); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	}

	return nil
}

// suite returns the benchmarks in the order they are run
func suite() []benchmark {
	return []benchmark{
		{name: "set", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, iter := getKeys("set")
			b.Cleanup(func() { iter(func(k string) { _ = s.Delete(k) }) })
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					measure(timer, counter, func() error { return s.Set(getKey(counter), []byte("test")) })
					counter++
				}
			})
		}},
		{name: "set-large", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			largeValue := make([]byte, benchLargeValueSizeKB*1024)
			for i := range largeValue {
				largeValue[i] = byte(i % 256)
			}
			getKey, iter := getKeys("set-large")
			b.Cleanup(func() { iter(func(k string) { _ = s.Delete(k) }) })
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					measure(timer, counter, func() error { return s.Set(getKey(counter), largeValue) })
					counter++
				}
			})
		}},
		{name: "get", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, iter := getKeys("get")
			iter(func(k string) { _ = s.Set(k, []byte("test")) })
			b.Cleanup(func() { iter(func(k string) { _ = s.Delete(k) }) })
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					measure(timer, counter, func() error {
						_, _, err := s.Get(getKey(counter))
						return err
					})
					counter++
				}
			})
		}},
		{name: "has", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, iter := getKeys("has")
			iter(func(k string) { _ = s.Set(k, []byte("test")) })
			b.Cleanup(func() { iter(func(k string) { _ = s.Delete(k) }) })
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					measure(timer, counter, func() error {
						_, err := s.Has(getKey(counter))
						return err
					})
					counter++
				}
			})
		}},
		{name: "has-not", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, _ := getKeys("has-not")
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					measure(timer, counter, func() error {
						_, err := s.Has(getKey(counter))
						return err
					})
					counter++
				}
			})
		}},
		{name: "delete", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, _ := getKeys("delete")
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := getKey(counter)
					_ = s.Set(key, []byte("test"))
					measure(timer, counter, func() error { return s.Delete(key) })
					counter++
				}
			})
		}},
		{name: "mixed", fn: func(b *testing.B, s store.IStore, timer gometrics.Timer) {
			getKey, iter := getKeys("mixed")
			b.Cleanup(func() { iter(func(k string) { _ = s.Delete(k) }) })
			var ops atomic.Uint64
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := getKey(counter)
					measure(timer, counter, func() error {
						// 80% reads, 15% writes, 5% deletes
						switch op := ops.Add(1) % 20; {
						case op < 16:
							_, _, err := s.Get(key)
							return err
						case op < 19:
							return s.Set(key, []byte("test"))
						default:
							return s.Delete(key)
						}
					})
					counter++
				}
			})
		}},
	}
}

// measure runs op and records its latency for every benchSampleEvery-th call
func measure(timer gometrics.Timer, counter int, op func() error) {
	var err error
	if counter%benchSampleEvery == 0 {
		start := time.Now()
		err = op()
		timer.UpdateSince(start)
	} else {
		err = op()
	}
	if err != nil {
		plog.Errorf("benchmark operation failed: %v", err)
	}
}

func shouldSkip(test string) bool {
	for _, skip := range benchSkip {
		if strings.TrimSpace(skip) == test {
			return true
		}
	}
	return false
}

// getKeys returns a function mapping a counter onto the key spread and a
// function iterating all keys of the spread
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s/%s-%d", benchKeyPrefix, prefix, i)
	}
	return func(i int) string {
			return keys[i%benchKeySpread]
		}, func(f func(string)) {
			for _, k := range keys {
				f(k)
			}
		}
}

func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := timer.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(p[0]), time.Duration(p[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, registry gometrics.Registry, opts *table.Options) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P99Ns", "Samples",
		"Buckets", "LockMode", "CounterMode", "Quiescence",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, bm := range suite() {
		result := results[bm.name]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		timer := gometrics.GetOrRegisterTimer(bm.name, registry)
		p := timer.Percentiles([]float64{0.5, 0.99})

		row := []string{
			bm.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			strconv.FormatInt(timer.Count(), 10),
			strconv.Itoa(opts.Buckets),
			opts.LockMode.String(),
			opts.CounterMode.String(),
			opts.Quiescence.String(),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchLargeValueSizeKB),
			strconv.Itoa(benchKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", bm.name, err)
		}
	}

	return nil
}
