// Command outbox-bench measures capture and dispatch throughput against a
// MySQL or PostgreSQL outbox table.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velmie/txoutbox"
)

type mode string

const (
	modeConsume mode = "consume"
	modeEnqueue mode = "enqueue"
)

const (
	defaultRecords      = 100000
	defaultPayloadBytes = 512
	defaultWorkers      = 4
	defaultProducers    = 4
	defaultBatchSize    = 50
	defaultSeedBatch    = 1000
	defaultDrainTimeout = 2 * time.Minute
	idleCyclesToStop    = 3
	benchTypeTag        = "BenchEvent"
	benchRoutingKey     = "bench.event"
)

var (
	errDSNRequired       = errors.New("outbox-bench: dsn is required")
	errInvalidMode       = errors.New("outbox-bench: invalid mode")
	errInvalidDriver     = errors.New("outbox-bench: invalid driver")
	errInvalidCount      = errors.New("outbox-bench: records, workers, producers and batch size must be positive")
	errProcessedMismatch = errors.New("outbox-bench: processed records mismatch")
)

type benchConfig struct {
	driver       string
	dsn          string
	table        string
	mode         mode
	records      int
	payloadBytes int
	payloadSeed  int64
	random       bool
	workers      int
	producers    int
	batchSize    int
	seedBatch    int
	drainTimeout time.Duration
	reset        bool
}

type result struct {
	Mode           mode          `json:"mode"`
	Driver         string        `json:"driver"`
	Records        int           `json:"records"`
	Processed      int64         `json:"processed"`
	Produced       int64         `json:"produced"`
	SeedDuration   time.Duration `json:"seed_duration"`
	RunDuration    time.Duration `json:"run_duration"`
	Throughput     float64       `json:"throughput_msg_per_sec"`
	Workers        int           `json:"workers"`
	Producers      int           `json:"producers"`
	BatchSize      int           `json:"batch_size"`
	PayloadBytes   int           `json:"payload_bytes"`
	LatencyP50Ms   float64       `json:"latency_p50_ms"`
	LatencyP95Ms   float64       `json:"latency_p95_ms"`
	LatencyP99Ms   float64       `json:"latency_p99_ms"`
	LatencyMaxMs   float64       `json:"latency_max_ms"`
	LatencySamples int64         `json:"latency_samples"`
	CycleP50Ms     float64       `json:"cycle_p50_ms"`
	CycleP95Ms     float64       `json:"cycle_p95_ms"`
	CycleP99Ms     float64       `json:"cycle_p99_ms"`
	CycleMaxMs     float64       `json:"cycle_max_ms"`
	CycleSamples   int           `json:"cycle_samples"`
	UserCPU        float64       `json:"process_user_cpu_seconds"`
	SystemCPU      float64       `json:"process_system_cpu_seconds"`
	GoTotalAlloc   uint64        `json:"go_total_alloc_bytes"`
	GoNumGC        uint32        `json:"go_num_gc"`
}

// benchEvent is the synthetic occurrence every benchmark record carries.
type benchEvent struct {
	outbox.OccurrenceBase
	Data string `json:"data"`
}

func (*benchEvent) TypeTag() string    { return benchTypeTag }
func (*benchEvent) RoutingKey() string { return benchRoutingKey }

func main() {
	cfg := benchConfig{}
	var (
		runMode string
		jsonOut bool
	)

	flag.StringVar(&cfg.driver, "driver", driverMySQL, "Database driver: mysql or postgres")
	flag.StringVar(&cfg.dsn, "dsn", "", "Database DSN")
	flag.StringVar(&cfg.table, "table", "outbox_bench", "Outbox table name")
	flag.StringVar(&runMode, "mode", "consume", "Benchmark mode: consume or enqueue")
	flag.IntVar(&cfg.records, "records", defaultRecords, "Number of records to process")
	flag.IntVar(&cfg.payloadBytes, "payload-bytes", defaultPayloadBytes, "Payload data size in bytes")
	flag.BoolVar(&cfg.random, "payload-random", false, "Generate random payload contents")
	flag.Int64Var(&cfg.payloadSeed, "payload-seed", 1, "Random seed for payload generation")
	flag.IntVar(&cfg.workers, "workers", defaultWorkers, "Concurrent dispatchers")
	flag.IntVar(&cfg.producers, "producers", defaultProducers, "Concurrent producers (enqueue mode)")
	flag.IntVar(&cfg.batchSize, "batch-size", defaultBatchSize, "Dispatcher batch size")
	flag.IntVar(&cfg.seedBatch, "seed-batch", defaultSeedBatch, "Records per seeding transaction")
	flag.DurationVar(&cfg.drainTimeout, "drain-timeout", defaultDrainTimeout, "Maximum time to drain the table")
	flag.BoolVar(&cfg.reset, "reset", true, "Drop and recreate the table")
	flag.BoolVar(&jsonOut, "json", false, "Print JSON result")
	flag.Parse()

	var err error
	if cfg.mode, err = parseMode(runMode); err != nil {
		exitErr(err)
	}
	if err := validateConfig(cfg); err != nil {
		exitErr(err)
	}

	ctx := context.Background()
	tgt, err := openTarget(ctx, cfg)
	if err != nil {
		exitErr(err)
	}
	defer tgt.close()

	if cfg.reset {
		if err := tgt.reset(ctx); err != nil {
			exitErr(err)
		}
	}

	res, err := run(ctx, tgt, cfg)
	if err != nil {
		exitErr(err)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			exitErr(err)
		}
		return
	}

	fmt.Printf("mode=%s driver=%s processed=%d run=%s throughput=%.0f msg/s\n",
		res.Mode, res.Driver, res.Processed, res.RunDuration, res.Throughput)
	fmt.Printf("cycle p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms samples=%d\n",
		res.CycleP50Ms, res.CycleP95Ms, res.CycleP99Ms, res.CycleMaxMs, res.CycleSamples)
	if res.LatencySamples > 0 {
		fmt.Printf("latency p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms\n",
			res.LatencyP50Ms, res.LatencyP95Ms, res.LatencyP99Ms, res.LatencyMaxMs)
	}
}

func validateConfig(cfg benchConfig) error {
	if cfg.dsn == "" {
		return errDSNRequired
	}
	if _, err := parseDriver(cfg.driver); err != nil {
		return err
	}
	if cfg.records <= 0 || cfg.workers <= 0 || cfg.batchSize <= 0 || cfg.seedBatch <= 0 {
		return errInvalidCount
	}
	if cfg.mode == modeEnqueue && cfg.producers <= 0 {
		return errInvalidCount
	}

	return nil
}

func run(ctx context.Context, tgt *target, cfg benchConfig) (result, error) {
	// #nosec G404 -- deterministic RNG for benchmark payloads.
	data := buildPayload(cfg.payloadBytes, cfg.random, rand.New(rand.NewSource(cfg.payloadSeed)))
	res := result{
		Mode:         cfg.mode,
		Driver:       cfg.driver,
		Records:      cfg.records,
		Workers:      cfg.workers,
		Producers:    cfg.producers,
		BatchSize:    cfg.batchSize,
		PayloadBytes: len(data),
	}

	latency := &durationStats{}
	metrics := &benchMetrics{}
	registry := outbox.NewRegistry()
	outbox.MustRegister[benchEvent](registry, benchTypeTag)
	publisher := outbox.PublisherFunc(func(_ context.Context, msg outbox.Message) error {
		latency.Add(time.Since(msg.CreatedAt))
		return nil
	})

	var produced atomic.Int64
	if cfg.mode == modeConsume {
		seedStart := time.Now()
		n, err := seed(ctx, tgt, cfg, data)
		if err != nil {
			return result{}, err
		}
		produced.Store(n)
		res.SeedDuration = time.Since(seedStart)
	}

	startUsage := readResourceUsage()
	runCtx, cancel := context.WithTimeout(ctx, cfg.drainTimeout)
	defer cancel()

	start := time.Now()
	var producersDone sync.WaitGroup
	if cfg.mode == modeEnqueue {
		producersDone.Add(cfg.producers)
		for p := range cfg.producers {
			go func(p int) {
				defer producersDone.Done()
				produce(runCtx, tgt, cfg, data, share(cfg.records, cfg.producers, p), &produced)
			}(p)
		}
	}

	var producing atomic.Bool
	producing.Store(cfg.mode == modeEnqueue)
	go func() {
		producersDone.Wait()
		producing.Store(false)
	}()

	var workers sync.WaitGroup
	workers.Add(cfg.workers)
	for range cfg.workers {
		go func() {
			defer workers.Done()
			d := outbox.NewDispatcher(tgt.consumer, registry, publisher,
				outbox.WithBatchSize(cfg.batchSize),
				outbox.WithMetrics(metrics),
			)
			drain(runCtx, d, &producing)
		}()
	}
	workers.Wait()
	producersDone.Wait()

	res.RunDuration = time.Since(start)
	res.Processed = metrics.Delivered()
	res.Produced = produced.Load()
	if res.RunDuration > 0 {
		res.Throughput = float64(res.Processed) / res.RunDuration.Seconds()
	}

	lat := latency.Snapshot()
	res.LatencyP50Ms, res.LatencyP95Ms, res.LatencyP99Ms, res.LatencyMaxMs = msFloat(lat.P50), msFloat(lat.P95), msFloat(lat.P99), msFloat(lat.Max)
	res.LatencySamples = int64(lat.Count)
	cycles := metrics.cycles.Snapshot()
	res.CycleP50Ms, res.CycleP95Ms, res.CycleP99Ms, res.CycleMaxMs = msFloat(cycles.P50), msFloat(cycles.P95), msFloat(cycles.P99), msFloat(cycles.Max)
	res.CycleSamples = cycles.Count

	usage := deltaUsage(startUsage, readResourceUsage())
	res.UserCPU = usage.UserCPUSeconds
	res.SystemCPU = usage.SystemCPUSeconds
	res.GoTotalAlloc = usage.GoTotalAllocBytes
	res.GoNumGC = usage.GoNumGC

	if res.Processed != res.Produced {
		return res, fmt.Errorf("%w: produced %d, processed %d", errProcessedMismatch, res.Produced, res.Processed)
	}

	return res, nil
}

// drain runs cycles until the table stays empty and no producer is running.
func drain(ctx context.Context, d *outbox.Dispatcher, producing *atomic.Bool) {
	idle := 0
	for ctx.Err() == nil {
		cycle, err := d.DispatchOnce(ctx)
		if err != nil || cycle.Fetched == 0 {
			if !producing.Load() {
				idle++
			}
			if idle >= idleCyclesToStop {
				return
			}
			time.Sleep(time.Millisecond)
			continue
		}
		idle = 0
	}
}

func seed(ctx context.Context, tgt *target, cfg benchConfig, data string) (int64, error) {
	var seeded int64
	for seeded < int64(cfg.records) {
		size := min(cfg.seedBatch, cfg.records-int(seeded))
		occurrences, err := newOccurrences(size, data)
		if err != nil {
			return seeded, err
		}
		if err := tgt.capture(ctx, occurrences); err != nil {
			return seeded, fmt.Errorf("seed: %w", err)
		}
		seeded += int64(size)
	}

	return seeded, nil
}

func produce(ctx context.Context, tgt *target, cfg benchConfig, data string, count int, produced *atomic.Int64) {
	for range count {
		if ctx.Err() != nil {
			return
		}
		occurrences, err := newOccurrences(1, data)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if err := tgt.capture(ctx, occurrences); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		produced.Add(1)
	}
}

func newOccurrences(n int, data string) ([]outbox.Occurrence, error) {
	occurrences := make([]outbox.Occurrence, 0, n)
	for range n {
		base, err := outbox.NewOccurrenceBase(nil, nil)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, &benchEvent{OccurrenceBase: base, Data: data})
	}

	return occurrences, nil
}

// share splits total across n producers, giving the remainder to the first ones.
func share(total, n, idx int) int {
	count := total / n
	if idx < total%n {
		count++
	}

	return count
}

func buildPayload(size int, random bool, rng *rand.Rand) string {
	if size <= 0 {
		return ""
	}
	data := make([]byte, size)
	if !random {
		for i := range data {
			data[i] = 'a'
		}
		return string(data)
	}
	if rng == nil {
		// #nosec G404 -- deterministic RNG for benchmark payloads.
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for i := range data {
		data[i] = alphabet[rng.Intn(len(alphabet))]
	}

	return string(data)
}

func parseMode(value string) (mode, error) {
	switch value {
	case "consume":
		return modeConsume, nil
	case "enqueue":
		return modeEnqueue, nil
	default:
		return "", fmt.Errorf("%w: %s", errInvalidMode, value)
	}
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
