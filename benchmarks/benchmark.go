// Command benchmarks loads the same key/value workload into the stratum
// B+ tree (through the full buffer pool + file disk stack) and into a
// Pebble store, and reports per-operation latency statistics for both.
// Results go to stdout and to a CSV file for external charting.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"stratum/pkg/buffer"
	"stratum/pkg/primitives"
	"stratum/pkg/storage/disk"
	"stratum/pkg/storage/index/btree"
)

// BenchResult captures latency statistics for one (engine, operation) pair.
type BenchResult struct {
	Engine     string
	Operation  string
	Ops        int
	TotalTime  time.Duration
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	OpsPerSec  float64
}

// kvStore is the minimal surface both engines are driven through.
type kvStore interface {
	Insert(key int64) error
	Get(key int64) error
	Close() error
}

// treeStore runs the workload against the B+ tree over a file-backed
// buffer pool.
type treeStore struct {
	fm   *disk.FileManager
	bpm  *buffer.BufferPoolManager
	tree *btree.BPlusTree
}

func openTreeStore(dir string, poolSize int) (*treeStore, error) {
	fm, err := disk.NewFileManager(filepath.Join(dir, "bench.db"))
	if err != nil {
		return nil, err
	}
	bpm, err := buffer.NewBufferPoolManager(poolSize, fm, 2)
	if err != nil {
		fm.Close()
		return nil, err
	}
	headerPage, err := bpm.NewPage()
	if err != nil {
		fm.Close()
		return nil, err
	}
	headerPID := headerPage.ID()
	bpm.UnpinPage(headerPID, true)

	cmp := func(a, b int64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	tree, err := btree.New("bench", headerPID, bpm, cmp, 128, 128)
	if err != nil {
		fm.Close()
		return nil, err
	}
	return &treeStore{fm: fm, bpm: bpm, tree: tree}, nil
}

func (s *treeStore) Insert(key int64) error {
	ok, err := s.tree.Insert(key, primitives.NewRID(primitives.PageID(key), 0))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("duplicate key %d", key)
	}
	return nil
}

func (s *treeStore) Get(key int64) error {
	values, err := s.tree.GetValue(key)
	if err != nil {
		return err
	}
	if len(values) != 1 {
		return fmt.Errorf("key %d: expected one value, got %d", key, len(values))
	}
	return nil
}

func (s *treeStore) Close() error {
	if err := s.bpm.FlushAllPages(); err != nil {
		return err
	}
	return s.fm.Close()
}

// pebbleStore is the comparison baseline: CockroachDB's LSM engine
// driving the same workload.
type pebbleStore struct {
	db *pebble.DB
}

func openPebbleStore(dir string) (*pebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          16 << 20,
		L0CompactionThreshold: 4,
	}
	db, err := pebble.Open(filepath.Join(dir, "pebble"), opts)
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

func encodeKey(key int64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(key)
		key >>= 8
	}
	return buf
}

func (s *pebbleStore) Insert(key int64) error {
	return s.db.Set(encodeKey(key), encodeKey(key), pebble.NoSync)
}

func (s *pebbleStore) Get(key int64) error {
	_, closer, err := s.db.Get(encodeKey(key))
	if err != nil {
		return err
	}
	return closer.Close()
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

// runOp measures one operation over a key sequence and aggregates
// latency percentiles.
func runOp(engine, operation string, keys []int64, op func(int64) error) BenchResult {
	durations := make([]time.Duration, 0, len(keys))
	start := time.Now()

	for _, k := range keys {
		opStart := time.Now()
		if err := op(k); err != nil {
			log.Fatalf("%s %s(%d): %v", engine, operation, k, err)
		}
		durations = append(durations, time.Since(opStart))
	}
	total := time.Since(start)

	slices.Sort(durations)
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return BenchResult{
		Engine:     engine,
		Operation:  operation,
		Ops:        len(keys),
		TotalTime:  total,
		AvgLatency: sum / time.Duration(len(durations)),
		MinLatency: durations[0],
		MaxLatency: durations[len(durations)-1],
		P50Latency: durations[len(durations)/2],
		P95Latency: durations[int(float64(len(durations))*0.95)],
		P99Latency: durations[int(float64(len(durations))*0.99)],
		OpsPerSec:  float64(len(keys)) / total.Seconds(),
	}
}

func runSuite(engine string, store kvStore, n int, seed int64) []BenchResult {
	fmt.Printf("== %s (%d keys)\n", engine, n)

	sequential := make([]int64, n)
	for i := range sequential {
		sequential[i] = int64(i + 1)
	}
	shuffled := make([]int64, n)
	copy(shuffled, sequential)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	results := []BenchResult{
		runOp(engine, "insert-seq", sequential, store.Insert),
		runOp(engine, "get-random", shuffled, store.Get),
		runOp(engine, "get-seq", sequential, store.Get),
	}
	for _, r := range results {
		printResult(r)
	}
	return results
}

func printResult(r BenchResult) {
	fmt.Printf("  %-12s %8d ops  avg %-10v p50 %-10v p95 %-10v p99 %-10v %.0f ops/s\n",
		r.Operation, r.Ops, r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency, r.OpsPerSec)
}

func writeCSV(path string, results []BenchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Engine", "Operation", "Ops", "AvgNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec"}); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			r.Engine,
			r.Operation,
			strconv.Itoa(r.Ops),
			strconv.FormatInt(r.AvgLatency.Nanoseconds(), 10),
			strconv.FormatInt(r.P50Latency.Nanoseconds(), 10),
			strconv.FormatInt(r.P95Latency.Nanoseconds(), 10),
			strconv.FormatInt(r.P99Latency.Nanoseconds(), 10),
			strconv.FormatFloat(r.OpsPerSec, 'f', 0, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	n := flag.Int("n", 100000, "number of keys per workload")
	poolSize := flag.Int("pool", 1024, "buffer pool size in frames")
	out := flag.String("out", "bench_results.csv", "CSV output path")
	seed := flag.Int64("seed", 1, "shuffle seed")
	flag.Parse()

	workDir, err := os.MkdirTemp("", "stratum_bench")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(workDir)

	var results []BenchResult

	tree, err := openTreeStore(workDir, *poolSize)
	if err != nil {
		log.Fatalf("open tree store: %v", err)
	}
	results = append(results, runSuite("bplustree", tree, *n, *seed)...)
	if err := tree.Close(); err != nil {
		log.Fatalf("close tree store: %v", err)
	}

	lsm, err := openPebbleStore(workDir)
	if err != nil {
		log.Fatalf("open pebble store: %v", err)
	}
	results = append(results, runSuite("pebble", lsm, *n, *seed)...)
	if err := lsm.Close(); err != nil {
		log.Fatalf("close pebble store: %v", err)
	}

	if err := writeCSV(*out, results); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	fmt.Printf("results written to %s\n", *out)
}
