package stress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/qtable/cmd/util"
	"github.com/ValentinKolb/qtable/lib/table"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	StressCmd = &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent readers and writers against a table",
		Long: util.WrapString("Readers look keys up and verify that the values they hold are never destroyed while their read section is open. " +
			"Writers insert and remove keys at random. After the run every key is removed and the table is destroyed; " +
			"the command fails if a reader saw a destroyed value or teardown did not complete."),
		RunE:    run,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
	}

	plog = logger.GetLogger("cli")
)

func init() {
	key := "duration"
	StressCmd.Flags().Duration(key, 5*time.Second, util.WrapString("How long readers and writers run"))
	key = "readers"
	StressCmd.Flags().Int(key, runtime.GOMAXPROCS(0), util.WrapString("Number of reader goroutines"))
	key = "writers"
	StressCmd.Flags().Int(key, 2, util.WrapString("Number of writer goroutines"))
	key = "keys"
	StressCmd.Flags().Int(key, 1024, util.WrapString("Size of the key space"))
	key = "drain-timeout"
	StressCmd.Flags().Duration(key, 30*time.Second, util.WrapString("How long to wait for pending entries and teardown after the run"))
	key = "metrics"
	StressCmd.Flags().Bool(key, false, util.WrapString("Print the table metrics in Prometheus text format after the run"))
}

// payload is the value type used by the stress test. destroy poisons it so
// readers can detect use after reclamation.
type payload struct {
	key       uint64
	destroyed atomic.Bool
}

type counters struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	inserts    atomic.Uint64
	removes    atomic.Uint64
	violations atomic.Uint64
}

func run(cmd *cobra.Command, _ []string) error {
	opts, tracker, err := util.GetTableOptions("stress")
	if err != nil {
		return err
	}
	readers := max(viper.GetInt("readers"), 1)
	writers := max(viper.GetInt("writers"), 1)
	keySpace := uint64(max(viper.GetInt("keys"), 1))
	drainTimeout := viper.GetDuration("drain-timeout")

	fmt.Println("Stress test for qtable")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.OptionsString(opts))
	fmt.Printf("Readers: %d\nWriters: %d\nKeys: %d\nDuration: %s\n\n", readers, writers, keySpace, viper.GetDuration("duration"))

	var destroyed atomic.Uint64
	tbl, err := table.New[uint64, *payload](table.Uint64Hasher(), table.Uint64Equal, func(p *payload) {
		if p.destroyed.Swap(true) {
			plog.Errorf("payload for key %d destroyed twice", p.key)
		}
		destroyed.Add(1)
	}, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("duration"))
	defer cancel()

	var c counters
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < readers; i++ {
		g.Go(func() error { return read(ctx, tbl, keySpace, &c) })
	}
	for i := 0; i < writers; i++ {
		g.Go(func() error { return write(ctx, tbl, keySpace, &c) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("hits=%d misses=%d inserts=%d removes=%d violations=%d\n",
		c.hits.Load(), c.misses.Load(), c.inserts.Load(), c.removes.Load(), c.violations.Load())

	// remove what is left and wait for every removed entry to be reclaimed
	for k := uint64(0); k < keySpace; k++ {
		if err := tbl.Remove(k); err == nil {
			c.removes.Add(1)
		}
	}
	if err := waitFor(drainTimeout, func() bool { return tbl.Pending() == 0 }); err != nil {
		return fmt.Errorf("pending entries did not drain: %d left: %w", tbl.Pending(), err)
	}

	info := tbl.Info()
	if err := tbl.Destroy(); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	select {
	case <-tbl.Done():
	case <-time.After(drainTimeout):
		return errors.New("table teardown did not complete")
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if viper.GetBool("metrics") {
		tbl.WriteMetrics(os.Stdout)
	}
	fmt.Printf("destroyed=%d outstanding-allocations=%d\n", destroyed.Load(), tracker.Total())

	switch {
	case c.violations.Load() > 0:
		return fmt.Errorf("%d reads observed a destroyed value", c.violations.Load())
	case destroyed.Load() != c.inserts.Load():
		return fmt.Errorf("destroyed %d values but inserted %d", destroyed.Load(), c.inserts.Load())
	case tracker.Total() != 0:
		return fmt.Errorf("%d allocations outstanding after teardown", tracker.Total())
	}
	return nil
}

// read looks random keys up and checks that a held value stays intact until
// it is released
func read(ctx context.Context, tbl *table.Table[uint64, *payload], keySpace uint64, c *counters) error {
	for ctx.Err() == nil {
		k := rand.Uint64N(keySpace)
		p, ok := tbl.Lookup(k)
		if !ok {
			c.misses.Add(1)
			continue
		}
		c.hits.Add(1)
		if p.key != k || p.destroyed.Load() {
			c.violations.Add(1)
		}
		runtime.Gosched()
		if p.destroyed.Load() {
			c.violations.Add(1)
		}
		if err := tbl.Release(k); err != nil {
			return fmt.Errorf("release of key %d: %w", k, err)
		}
	}
	return nil
}

// write inserts or removes random keys
func write(ctx context.Context, tbl *table.Table[uint64, *payload], keySpace uint64, c *counters) error {
	for ctx.Err() == nil {
		k := rand.Uint64N(keySpace)
		if rand.IntN(2) == 0 {
			switch err := tbl.Insert(k, &payload{key: k}); {
			case err == nil:
				c.inserts.Add(1)
			case errors.Is(err, table.ErrExists):
			case errors.Is(err, table.ErrNoMemory):
				runtime.Gosched()
			default:
				return fmt.Errorf("insert of key %d: %w", k, err)
			}
			continue
		}
		switch err := tbl.Remove(k); {
		case err == nil:
			c.removes.Add(1)
		case errors.Is(err, table.ErrNotFound):
		default:
			return fmt.Errorf("remove of key %d: %w", k, err)
		}
	}
	return nil
}

func waitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}
