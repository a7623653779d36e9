package table

import (
	"github.com/ValentinKolb/qtable/lib/util"
)

// maxInfoSamples bounds how many bucket chains Info walks.
const maxInfoSamples = 4096

// Info is a snapshot of a table's configuration and counters.
// Fields are read one by one without a global lock, so they are not mutually
// consistent under concurrent use.
type Info struct {
	Name         string                 `json:"name"`
	State        string                 `json:"state"`
	Buckets      int                    `json:"buckets"`
	LockMode     string                 `json:"lock_mode"`
	Locks        int                    `json:"locks"`
	CounterMode  string                 `json:"counter_mode"`
	Quiescence   string                 `json:"quiescence"`
	Live         int64                  `json:"live"`
	Pending      int64                  `json:"pending"`
	Started      uint64                 `json:"started"`
	Completed    uint64                 `json:"completed"`
	OpenSections int                    `json:"open_sections"`
	RetryBacklog int                    `json:"retry_backlog"`
	Reclaimed    uint64                 `json:"reclaimed"`
	Deferrals    uint64                 `json:"deferrals"`
	ChainLengths util.DistributionStats `json:"chain_lengths"`
}

// Info returns a snapshot of the table. Chain lengths are sampled evenly over
// at most maxInfoSamples buckets.
//
// Thread-safety: This method is thread-safe. It does not take bucket locks.
func (t *Table[K, V]) Info() Info {
	info := Info{
		Name:        t.opts.Name,
		State:       t.State().String(),
		Buckets:     len(t.buckets),
		LockMode:    t.opts.LockMode.String(),
		Locks:       t.locks.count(),
		CounterMode: t.opts.CounterMode.String(),
		Quiescence:  t.opts.Quiescence.String(),
		Live:        t.live.Load(),
		Pending:     t.pending.Load(),
		Started:     t.epochs.started.Load(),
		Completed:   t.epochs.completed.Load(),
		Reclaimed:   t.reclaimed.Load(),
		Deferrals:   t.deferrals.Load(),
	}
	if t.sections != nil {
		info.OpenSections = t.sections.size()
	}
	info.RetryBacklog = t.retryBacklog()

	step := 1
	if len(t.buckets) > maxInfoSamples {
		step = len(t.buckets) / maxInfoSamples
	}
	lengths := make([]float64, 0, len(t.buckets)/step)
	for i := 0; i < len(t.buckets); i += step {
		lengths = append(lengths, float64(t.buckets[i].length()))
	}
	info.ChainLengths = util.NewDistributionStats(lengths)
	return info
}
