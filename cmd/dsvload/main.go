package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"dsvload/internal/datasource/file"
	"dsvload/internal/engine"
	"dsvload/internal/mapping"
	"dsvload/internal/metrics"
	"dsvload/internal/metrics/datadog"
	"dsvload/internal/metrics/prompush"
	"dsvload/internal/relaxedjson"
	"dsvload/internal/storage"
	"dsvload/internal/storage/postgres"
	"dsvload/internal/storage/sqlite"
)

// main is the entry point for the loader binary. It compiles the mapping
// configuration, optionally initializes a metrics backend, and streams every
// data file through the engine into the selected sink.
func main() {
	var (
		cfgPath           string
		dataPath          string
		delimiterFlg      string
		sinkName          string
		dsn               string
		table             string
		job               string
		metricsBackendFlg string
		pushGatewayURLFlg string
		dogstatsdAddrFlg  string
		workers           int
		batchSize         int
		dedup             bool
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/mapping.json", "mapping configuration path (relaxed JSON)")
	flag.StringVar(&dataPath, "data", "", "data file or directory of data files")
	flag.StringVar(&delimiterFlg, "delimiter", "", "column delimiter (overrides the configuration)")
	flag.StringVar(&sinkName, "sink", "none", "destination sink (none, sqlite, postgres)")
	flag.StringVar(&dsn, "dsn", "", "sink connection string")
	flag.StringVar(&table, "table", "", "sink staging table (default kv_staging)")
	flag.StringVar(&job, "job", "dsvload", "job name for metrics labels")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddrFlg, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	flag.IntVar(&workers, "workers", 4, "row-processing workers per file")
	flag.IntVar(&batchSize, "batch-size", 1000, "write ops per sink batch")
	flag.BoolVar(&dedup, "dedup", false, "skip lines already seen in the same file")
	flag.BoolVar(&validate, "validate", false, "compile the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		fatalf("read config: %v", err)
	}

	doc, err := relaxedjson.Parse(string(raw), relaxedjson.Options{CoerceKeys: true})
	if err != nil {
		fatalf("parse config %s: %v", cfgPath, err)
	}

	cfg, defs, err := mapping.Compile(doc)
	if err != nil {
		var me *mapping.Error
		if errors.As(err, &me) {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", me.Path, me.Message)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	if validate {
		log.Printf("Configuration is valid: %v (version=%s, %d mappings)",
			cfgPath, cfg[mapping.FieldVersion], len(defs))
		os.Exit(0)
	}

	if dataPath == "" {
		fatalf("-data is required")
	}
	if len(defs) == 0 {
		fatalf("configuration %s has no mappings; nothing to load", cfgPath)
	}

	nColumns, err := strconv.Atoi(cfg[mapping.FieldNColumns])
	if err != nil || nColumns <= 0 {
		fatalf("configuration %s: n_columns %q is not a positive integer", cfgPath, cfg[mapping.FieldNColumns])
	}

	delimiter := delimiterFlg
	if delimiter == "" {
		delimiter = cfg[mapping.FieldDelimiter]
	}
	if delimiter == "" {
		delimiter = ","
	}

	hasHeader := false
	if h, ok := cfg[mapping.FieldHeaderExist]; ok {
		hasHeader, err = strconv.ParseBool(h)
		if err != nil {
			fatalf("configuration %s: header_exist %q is not a boolean", cfgPath, h)
		}
	}

	setupMetrics(metricsBackendFlg, pushGatewayURLFlg, dogstatsdAddrFlg, job, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()

	writer, closeWriter, err := openSink(ctx, sinkName, dsn, table)
	if err != nil {
		fatalf("sink: %v", err)
	}
	defer closeWriter()

	files, err := file.ListDataFiles(dataPath)
	if err != nil {
		fatalf("data: %v", err)
	}
	if len(files) == 0 {
		fatalf("data: no files under %s", dataPath)
	}

	eng := engine.New(defs, engine.Options{
		Job:       job,
		Delimiter: delimiter,
		NColumns:  nColumns,
		HasHeader: hasHeader,
		Workers:   workers,
		BatchSize: batchSize,
		DedupRows: dedup,
	})

	start := time.Now()
	var total engine.Stats
	for _, path := range files {
		if *verbose {
			log.Printf("loading %s", path)
		}
		fileStart := time.Now()
		stats, err := eng.Run(ctx, file.NewLocal(path), writer)
		metrics.RecordStep(job, "load", err, time.Since(fileStart))
		if err != nil {
			log.Fatalf("load %s: %v", path, err)
		}
		if *verbose {
			log.Printf("%s: %+v", path, stats)
		}
		total.LinesRead += stats.LinesRead
		total.Blank += stats.Blank
		total.WidthMismatch += stats.WidthMismatch
		total.Duplicates += stats.Duplicates
		total.MissingKey += stats.MissingKey
		total.EmptyRecords += stats.EmptyRecords
		total.Written += stats.Written
	}

	log.Printf("done: files=%d read=%d written=%d skipped=%d elapsed=%s",
		len(files), total.LinesRead, total.Written,
		total.Blank+total.WidthMismatch+total.Duplicates+total.MissingKey+total.EmptyRecords,
		time.Since(start).Truncate(time.Millisecond))
}

// fatalf logs the formatted message and exits with status 1.
func fatalf(format string, args ...any) {
	log.Fatalf(format, args...)
}

// setupMetrics installs a metrics backend using the flag -> env -> default
// chain. The nop backend stays in place when metrics are disabled or a
// backend fails to initialize.
func setupMetrics(backendFlg, gatewayFlg, dogstatsdFlg, job string, verbose bool) {
	backendName := backendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	switch backendName {
	case "pushgateway":
		gwURL := gatewayFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%v url=%v job=%v", backendName, gwURL, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := dogstatsdFlg
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "dsvload.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%v addr=%v job=%v", backendName, addr, job)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// openSink builds the destination writer named by sinkName. The returned
// close function is always safe to call.
func openSink(ctx context.Context, sinkName, dsn, table string) (storage.Writer, func(), error) {
	switch sinkName {
	case "", "none":
		return &storage.Null{}, func() {}, nil

	case "sqlite":
		if dsn == "" {
			return nil, nil, fmt.Errorf("sqlite sink requires -dsn")
		}
		return sqlite.New(ctx, sqlite.Config{DSN: dsn, Table: table})

	case "postgres":
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres sink requires -dsn")
		}
		return postgres.New(ctx, postgres.Config{DSN: dsn, Table: table})

	default:
		return nil, nil, fmt.Errorf("unknown sink %q (want none, sqlite, or postgres)", sinkName)
	}
}
