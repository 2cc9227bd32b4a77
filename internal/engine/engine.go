// Package engine drives data rows through the tokenizer and a compiled
// mapping schema to produce destination write operations.
//
// One Engine holds one compiled schema, read-only, and fans tokenized rows
// out to a worker pool; the schema is never mutated after construction, so
// no synchronization is needed around it. Rows flow through channels:
//
//	reader -> lines -> workers (tokenize + resolve) -> ops -> batched writer
//
// Malformed rows never abort a run. Blank lines, width mismatches,
// duplicates, and rows without a resolvable key are counted and skipped.
package engine

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"dsvload/internal/datasource"
	"dsvload/internal/dsv"
	"dsvload/internal/mapping"
	"dsvload/internal/metrics"
	"dsvload/internal/storage"
	"dsvload/pkg/records"
)

// Options configures one Engine. The zero value gets sensible defaults from
// New.
type Options struct {
	// Job labels emitted metrics.
	Job string

	// Delimiter separates columns. Default ",".
	Delimiter string

	// NColumns is the expected column count per row; rows with any other
	// width are skipped and counted. 0 disables the check.
	NColumns int

	// HasHeader makes the first non-blank line a header row. Column
	// references by name resolve against it.
	HasHeader bool

	// Workers sets the tokenize/resolve pool size. Default 4.
	Workers int

	// BatchSize groups ops per writer call. Default 1000.
	BatchSize int

	// DedupRows drops lines whose xxh3 fingerprint was already seen in
	// this run.
	DedupRows bool
}

// Stats summarizes one run. All counts are per run, not cumulative.
type Stats struct {
	LinesRead     int64
	Blank         int64
	WidthMismatch int64
	Duplicates    int64
	MissingKey    int64
	EmptyRecords  int64
	Written       int64
}

// Engine pairs one compiled schema with data lines.
type Engine struct {
	defs []mapping.MappingDefinition
	opt  Options
}

// New builds an Engine over a compiled schema. The defs slice is shared and
// must not be modified afterwards. A schema with zero or several primary
// mappings is accepted (that convention belongs to the caller) but logged.
func New(defs []mapping.MappingDefinition, opt Options) *Engine {
	if opt.Delimiter == "" {
		opt.Delimiter = ","
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 1000
	}

	primaries := 0
	for _, d := range defs {
		if !d.SecondaryMapping {
			primaries++
		}
	}
	if primaries != 1 {
		log.Printf("engine: schema has %d primary mappings (callers conventionally expect 1)", primaries)
	}

	return &Engine{defs: defs, opt: opt}
}

type counters struct {
	linesRead     atomic.Int64
	blank         atomic.Int64
	widthMismatch atomic.Int64
	duplicates    atomic.Int64
	missingKey    atomic.Int64
	emptyRecords  atomic.Int64
}

// Run streams lines from src through the worker pool into w and returns the
// run's stats. The first writer or read error aborts the run; row-level
// problems only increment counters.
func (e *Engine) Run(ctx context.Context, src datasource.Source, w storage.Writer) (Stats, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var header map[string]int
	if e.opt.HasHeader {
		header, err = readHeader(scanner, e.opt.Delimiter)
		if err != nil {
			return Stats{}, err
		}
	}

	var (
		cnt     counters
		written int64
		lines   = make(chan string, e.opt.Workers*4)
		ops     = make(chan records.WriteOp, e.opt.BatchSize)
	)

	g, ctx := errgroup.WithContext(ctx)

	// Reader: counts, de-duplicates, dispatches. Single goroutine, so the
	// seen-set needs no lock.
	g.Go(func() error {
		defer close(lines)
		var seen map[uint64]struct{}
		if e.opt.DedupRows {
			seen = make(map[uint64]struct{})
		}
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := scanner.Text()
			cnt.linesRead.Add(1)
			if strings.TrimSpace(line) == "" {
				cnt.blank.Add(1)
				continue
			}
			if seen != nil {
				h := xxh3.HashString(line)
				if _, dup := seen[h]; dup {
					cnt.duplicates.Add(1)
					continue
				}
				seen[h] = struct{}{}
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return scanner.Err()
	})

	// Workers: tokenize and resolve against the shared schema.
	var workers sync.WaitGroup
	for i := 0; i < e.opt.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for line := range lines {
				cols := dsv.Tokenize(line, e.opt.Delimiter)
				if cols == nil {
					cnt.blank.Add(1)
					continue
				}
				if e.opt.NColumns > 0 && len(cols) != e.opt.NColumns {
					cnt.widthMismatch.Add(1)
					continue
				}
				for _, def := range e.defs {
					op, ok := e.buildOp(def, cols, header, &cnt)
					if !ok {
						continue
					}
					select {
					case ops <- op:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(ops)
	}()

	// Loader: batches ops into the writer.
	g.Go(func() error {
		n, err := storage.LoadBatches(ctx, ops, e.opt.BatchSize, w)
		atomic.AddInt64(&written, n)
		return err
	})

	runErr := g.Wait()

	stats := Stats{
		LinesRead:     cnt.linesRead.Load(),
		Blank:         cnt.blank.Load(),
		WidthMismatch: cnt.widthMismatch.Load(),
		Duplicates:    cnt.duplicates.Load(),
		MissingKey:    cnt.missingKey.Load(),
		EmptyRecords:  cnt.emptyRecords.Load(),
		Written:       atomic.LoadInt64(&written),
	}
	e.recordStats(stats)
	return stats, runErr
}

func (e *Engine) recordStats(s Stats) {
	job := e.opt.Job
	metrics.RecordRows(job, "read", s.LinesRead)
	metrics.RecordRows(job, "blank", s.Blank)
	metrics.RecordRows(job, "width_mismatch", s.WidthMismatch)
	metrics.RecordRows(job, "duplicate", s.Duplicates)
	metrics.RecordRows(job, "missing_key", s.MissingKey)
	metrics.RecordRows(job, "empty_record", s.EmptyRecords)
	metrics.RecordRows(job, "written", s.Written)
	if s.Written > 0 {
		metrics.RecordBatches(job, (s.Written+int64(e.opt.BatchSize)-1)/int64(e.opt.BatchSize))
	}
}

// readHeader consumes lines until the first non-blank one and maps its
// normalized column names to positions.
func readHeader(scanner *bufio.Scanner, delimiter string) (map[string]int, error) {
	for scanner.Scan() {
		cols := dsv.Tokenize(scanner.Text(), delimiter)
		if cols == nil {
			continue
		}
		hdr := make(map[string]int, len(cols))
		for i, name := range cols {
			hdr[normKey(name)] = i
		}
		return hdr, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("engine: header row expected but input is empty")
}

// normKey canonicalizes a header cell so that names differing only by case
// or Unicode normalization form still match.
func normKey(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// buildOp derives one write op from one row and one mapping definition.
// A row whose key cannot be resolved yields no op; bins that fail to resolve
// are dropped individually, and an op whose bins all dropped is discarded.
func (e *Engine) buildOp(def mapping.MappingDefinition, cols []string, header map[string]int, cnt *counters) (records.WriteOp, bool) {
	var op records.WriteOp
	op.Secondary = def.SecondaryMapping

	key, ok := e.resolveMeta(def.Key, cols, header)
	if !ok || key == nil || key == "" {
		cnt.missingKey.Add(1)
		return op, false
	}
	op.Key = key

	set, ok := e.resolveMeta(def.Set, cols, header)
	if ok {
		if s, isStr := set.(string); isStr {
			op.SetName = s
		} else {
			op.SetName = fmt.Sprint(set)
		}
	}

	op.Bins = make([]records.Bin, 0, len(def.Bins))
	for _, bin := range def.Bins {
		name, ok := e.resolveBinName(bin, cols, header)
		if !ok || name == "" {
			continue
		}
		value, ok := e.resolveBinValue(bin, cols, header)
		if !ok {
			continue
		}
		op.Bins = append(op.Bins, records.Bin{Name: name, Value: value})
	}
	if len(op.Bins) == 0 {
		cnt.emptyRecords.Add(1)
		return op, false
	}
	return op, true
}

func (e *Engine) resolveMeta(meta mapping.MetaDefinition, cols []string, header map[string]int) (any, bool) {
	if meta.IsStatic {
		return meta.Static, true
	}
	raw, ok := resolveRaw(meta.Column, cols, header)
	if !ok || raw == "" {
		return nil, false
	}
	v, err := convert(raw, meta.Column)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (e *Engine) resolveBinName(bin mapping.BinDefinition, cols []string, header map[string]int) (string, bool) {
	if bin.NameIsStatic {
		return bin.StaticName, true
	}
	return resolveRaw(bin.NameColumn, cols, header)
}

func (e *Engine) resolveBinValue(bin mapping.BinDefinition, cols []string, header map[string]int) (any, bool) {
	if bin.ValueIsStatic {
		return bin.StaticValue, true
	}
	raw, ok := resolveRaw(bin.ValueColumn, cols, header)
	if !ok {
		return nil, false
	}
	if raw == "" {
		// Empty cells become null bins rather than empty strings.
		return nil, true
	}
	v, err := convert(raw, bin.ValueColumn)
	if err != nil {
		return nil, false
	}
	return v, true
}

// resolveRaw fetches the raw column text selected by col, by position or by
// normalized header name.
func resolveRaw(col mapping.ColumnDefinition, cols []string, header map[string]int) (string, bool) {
	if col.ByPosition() {
		if col.Position >= len(cols) {
			return "", false
		}
		return cols[col.Position], true
	}
	if header == nil {
		return "", false
	}
	at, ok := header[normKey(col.Name)]
	if !ok || at >= len(cols) {
		return "", false
	}
	return cols[at], true
}

// convert strips the declared prefix and converts raw text per the declared
// source type. Unknown types pass through as strings; the destination-side
// interpretation of dst_type belongs downstream.
func convert(raw string, col mapping.ColumnDefinition) (any, error) {
	if col.RemovePrefix != "" {
		raw = strings.TrimPrefix(raw, col.RemovePrefix)
	}
	switch strings.ToLower(col.SrcType) {
	case "", "string", "timestamp", "json", "geojson":
		return raw, nil
	case "integer", "int":
		return strconv.ParseInt(raw, 10, 64)
	case "float", "double":
		return strconv.ParseFloat(raw, 64)
	case "blob":
		if strings.EqualFold(col.Encoding, "hex") {
			return hex.DecodeString(raw)
		}
		return []byte(raw), nil
	default:
		return raw, nil
	}
}
