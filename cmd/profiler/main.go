package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/filecache"
	"github.com/meigma/filecache/internal/sizing"
)

type config struct {
	mode        string
	configFile  string
	keys        int
	valueSize   string
	pattern     string
	compression string
	sharding    int
	maxFiles    int
	maxSize     string
	deleteRate  float64
	fgProfile   string
	duration    time.Duration
	iterations  int
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	readRandom  bool
	tempDir     string
	keepTemp    bool
	randomSeed  int64
	verbose     bool
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkBool  bool
	sinkCount int
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	c, err := openCache(cfg, dir)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}
	defer c.Close()

	valueSize, err := sizing.Parse(cfg.valueSize)
	if err != nil {
		log.Fatalf("value-size: %v", err)
	}
	keys, values := makeEntries(cfg.keys, int(valueSize), cfg.pattern, cfg.randomSeed)

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, c, keys, values)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.mode,
		stats.ops,
		sizing.Format(stats.bytes),
		stats.elapsed,
		sizing.Format(int64(float64(stats.bytes)/stats.elapsed.Seconds())),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, c *filecache.Cache, keys []string, values [][]byte) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	populate := func() error {
		for i, key := range keys {
			if _, err := c.SetBytes(key, values[i]); err != nil {
				return err
			}
		}
		return nil
	}

	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks

	switch cfg.mode {
	case "set":
		for shouldContinue() {
			i := pick(len(keys), ops, rng, cfg.readRandom)
			if _, err := c.SetBytes(keys[i], values[i]); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(len(values[i]))
			ops++
		}

	case "set-stream":
		for shouldContinue() {
			i := pick(len(keys), ops, rng, cfg.readRandom)
			if _, err := c.SetStream(keys[i], bytes.NewReader(values[i])); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(len(values[i]))
			ops++
		}

	case "get":
		if err := populate(); err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			i := pick(len(keys), ops, rng, cfg.readRandom)
			data, ok, err := c.Get(keys[i])
			if err != nil {
				return profileStats{}, err
			}
			if !ok {
				return profileStats{}, fmt.Errorf("missing entry for %q", keys[i])
			}
			sinkBytes = data
			byteCount += int64(len(data))
			ops++
		}

	case "stream":
		if err := populate(); err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			i := pick(len(keys), ops, rng, cfg.readRandom)
			rc, ok, err := c.Stream(keys[i])
			if err != nil {
				return profileStats{}, err
			}
			if !ok {
				return profileStats{}, fmt.Errorf("missing entry for %q", keys[i])
			}
			n, err := io.Copy(io.Discard, rc)
			_ = rc.Close()
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "has":
		if err := populate(); err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			i := pick(len(keys), ops, rng, cfg.readRandom)
			ok, err := c.Has(keys[i])
			if err != nil {
				return profileStats{}, err
			}
			sinkBool = ok
			ops++
		}

	case "keys":
		if err := populate(); err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			names, err := c.Keys()
			if err != nil {
				return profileStats{}, err
			}
			sinkCount = len(names)
			ops++
		}

	case "sweep":
		if !c.Limits().Enabled() {
			return profileStats{}, errors.New("sweep mode requires -max-files or -max-size")
		}
		start = time.Now()
		for shouldContinue() {
			if err := populate(); err != nil {
				return profileStats{}, err
			}
			res, err := c.RunEvictionSweep(context.Background())
			if err != nil {
				return profileStats{}, err
			}
			byteCount += res.FreedBytes
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "get", "mode: set, set-stream, get, stream, has, keys, sweep")
	flag.StringVar(&cfg.configFile, "config", "", "YAML or JSON cache config; flags override it")
	flag.IntVar(&cfg.keys, "keys", 512, "number of distinct keys")
	flag.StringVar(&cfg.valueSize, "value-size", "16KiB", "payload size per entry (e.g. 4KiB, 1MB)")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.compression, "compression", "", "compression: none, zstd, lz4, snappy")
	flag.IntVar(&cfg.sharding, "sharding", 0, "sharding level: 1 or 2")
	flag.IntVar(&cfg.maxFiles, "max-files", 0, "entry-count limit")
	flag.StringVar(&cfg.maxSize, "max-size", "", "cumulative size limit (e.g. 64MiB)")
	flag.Float64Var(&cfg.deleteRate, "delete-rate", 0, "sweep deletions per second (0 = unlimited)")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize key selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to hold the cache")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.BoolVar(&cfg.verbose, "v", false, "log cache activity to stderr")
	flag.Parse()
	return cfg
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openCache(cfg config, dir string) (*filecache.Cache, error) {
	var fileCfg filecache.Config
	if cfg.configFile != "" {
		data, err := os.ReadFile(cfg.configFile)
		if err != nil {
			return nil, err
		}
		fileCfg, err = filecache.ParseConfig(data)
		if err != nil {
			return nil, err
		}
	}

	// Periodic sweeps would skew measurements; sweep mode runs them explicitly.
	opts := []filecache.Option{
		filecache.WithDirectory(dir),
		filecache.WithCheckInterval(0),
	}
	if cfg.compression != "" {
		comp, err := filecache.ParseCompression(cfg.compression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filecache.WithCompression(comp))
	}
	if cfg.sharding != 0 {
		opts = append(opts, filecache.WithShardingLevel(cfg.sharding))
	}
	if cfg.maxFiles != 0 {
		opts = append(opts, filecache.WithMaxFiles(cfg.maxFiles))
	}
	if cfg.maxSize != "" {
		opts = append(opts, filecache.WithMaxSizeString(cfg.maxSize))
	}
	if cfg.deleteRate != 0 {
		opts = append(opts, filecache.WithDeleteRate(cfg.deleteRate))
	}
	if cfg.verbose {
		opts = append(opts, filecache.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	return filecache.NewFromConfig(fileCfg, opts...)
}

func pick(n, idx int, rng *rand.Rand, random bool) int {
	if random {
		return rng.Intn(n)
	}
	return idx % n
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "filecache-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

func makeEntries(count, size int, pattern string, seed int64) ([]string, [][]byte) {
	if count <= 0 {
		count = 1
	}
	keys := make([]string, count)
	values := make([][]byte, count)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // intentional use for reproducible benchmarks
	for i := range count {
		keys[i] = fmt.Sprintf("entry-%05d.dat", i)
		content := make([]byte, size)
		switch pattern {
		case "random":
			_, _ = rng.Read(content)
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}
		values[i] = content
	}
	return keys, values
}
