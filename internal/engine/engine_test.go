package engine

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"dsvload/internal/mapping"
	"dsvload/internal/relaxedjson"
	"dsvload/pkg/records"
)

// memSource serves a fixed string as a data file.
type memSource struct{ data string }

func (m memSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.data)), nil
}

// memWriter records every op it receives.
type memWriter struct {
	mu  sync.Mutex
	ops []records.WriteOp
}

func (w *memWriter) WriteBatch(ctx context.Context, ops []records.WriteOp) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, ops...)
	return nil
}

func (w *memWriter) all() []records.WriteOp {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]records.WriteOp, len(w.ops))
	copy(out, w.ops)
	return out
}

func compileSchema(t *testing.T, config string) []mapping.MappingDefinition {
	t.Helper()
	doc, err := relaxedjson.Parse(config, relaxedjson.Options{CoerceKeys: true})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	_, defs, err := mapping.Compile(doc)
	if err != nil {
		t.Fatalf("compile config: %v", err)
	}
	return defs
}

const usersConfig = `{
	version: "2.0",
	dsv_config: { n_columns: 3, delimiter: "," },
	mappings: [
		{
			key: { column_position: 1, type: "integer" },
			set: "users",
			binList: [
				{ name: "name", value: { column_position: 2, type: "string" } },
				{ name: "score", value: { column_position: 3, type: "float" } }
			]
		}
	]
}`

func TestRunPositionalMapping(t *testing.T) {
	defs := compileSchema(t, usersConfig)
	eng := New(defs, Options{NColumns: 3, Workers: 2, BatchSize: 2})

	src := memSource{data: "1,alice,1.5\n2,bob,2.5\n3,carol,3.5\n"}
	w := &memWriter{}

	stats, err := eng.Run(context.Background(), src, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.LinesRead != 3 || stats.Written != 3 {
		t.Fatalf("stats = %+v, want 3 read / 3 written", stats)
	}

	ops := w.all()
	if len(ops) != 3 {
		t.Fatalf("got %d ops, want 3", len(ops))
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Key.(int64) < ops[j].Key.(int64) })

	op := ops[0]
	if op.Key != int64(1) || op.SetName != "users" || op.Secondary {
		t.Fatalf("op = %+v", op)
	}
	if len(op.Bins) != 2 {
		t.Fatalf("bins = %+v", op.Bins)
	}
	if op.Bins[0].Name != "name" || op.Bins[0].Value != "alice" {
		t.Errorf("name bin = %+v", op.Bins[0])
	}
	if op.Bins[1].Name != "score" || op.Bins[1].Value != 1.5 {
		t.Errorf("score bin = %+v", op.Bins[1])
	}
}

func TestRunHeaderNames(t *testing.T) {
	// The config refers to "Café" with the accent precomposed (NFC); the
	// header row carries it decomposed (NFD) and upper-cased. They must
	// still match.
	config := `{
		version: "2.0",
		dsv_config: { n_columns: 2, header_exist: true },
		mappings: [
			{
				key: { column_name: "id", type: "integer" },
				set: "places",
				binList: [
					{ name: "cafe", value: { column_name: "Café", type: "string" } }
				]
			}
		]
	}`
	defs := compileSchema(t, config)
	eng := New(defs, Options{NColumns: 2, HasHeader: true, Workers: 1})

	src := memSource{data: "ID,CAFÉ\n7,corner\n"}
	w := &memWriter{}

	stats, err := eng.Run(context.Background(), src, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Written != 1 {
		t.Fatalf("stats = %+v, want 1 written", stats)
	}
	op := w.all()[0]
	if op.Key != int64(7) {
		t.Errorf("key = %v, want 7", op.Key)
	}
	if len(op.Bins) != 1 || op.Bins[0].Value != "corner" {
		t.Errorf("bins = %+v", op.Bins)
	}
}

func TestRunSkipsAndCounts(t *testing.T) {
	defs := compileSchema(t, usersConfig)
	eng := New(defs, Options{NColumns: 3, Workers: 2, DedupRows: true})

	src := memSource{data: strings.Join([]string{
		"1,alice,1.5",
		"",                // blank
		"2,bob",           // width mismatch
		"1,alice,1.5",     // duplicate
		",charlie,2.0",    // missing key
		"3,dave,3.0",
		"",
	}, "\n")}
	w := &memWriter{}

	stats, err := eng.Run(context.Background(), src, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.LinesRead != 6 {
		t.Errorf("LinesRead = %d, want 6", stats.LinesRead)
	}
	if stats.Blank != 1 {
		t.Errorf("Blank = %d, want 1", stats.Blank)
	}
	if stats.WidthMismatch != 1 {
		t.Errorf("WidthMismatch = %d, want 1", stats.WidthMismatch)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.MissingKey != 1 {
		t.Errorf("MissingKey = %d, want 1", stats.MissingKey)
	}
	if stats.Written != 2 {
		t.Errorf("Written = %d, want 2", stats.Written)
	}
}

func TestRunSecondaryMapping(t *testing.T) {
	config := `{
		version: "2.0",
		dsv_config: { n_columns: 2 },
		mappings: [
			{
				key: { column_position: 1, type: "string" },
				set: "primary",
				binList: [ { name: "v", value: { column_position: 2, type: "string" } } ]
			},
			{
				secondary_mapping: "true",
				key: { column_position: 2, type: "string" },
				set: "index",
				binList: [ { name: "ref", value: { column_position: 1, type: "string" } } ]
			}
		]
	}`
	defs := compileSchema(t, config)
	eng := New(defs, Options{NColumns: 2, Workers: 1})

	src := memSource{data: "k1,v1\n"}
	w := &memWriter{}

	stats, err := eng.Run(context.Background(), src, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Written != 2 {
		t.Fatalf("Written = %d, want 2 (one per mapping)", stats.Written)
	}

	ops := w.all()
	sort.Slice(ops, func(i, j int) bool { return ops[i].SetName < ops[j].SetName })
	if ops[0].SetName != "index" || !ops[0].Secondary || ops[0].Key != "v1" {
		t.Errorf("secondary op = %+v", ops[0])
	}
	if ops[1].SetName != "primary" || ops[1].Secondary || ops[1].Key != "k1" {
		t.Errorf("primary op = %+v", ops[1])
	}
}

func TestRunBlobAndPrefix(t *testing.T) {
	config := `{
		version: "2.0",
		dsv_config: { n_columns: 2 },
		mappings: [
			{
				key: { column_position: 1, type: "string", remove_prefix: "user::" },
				set: "blobs",
				binList: [
					{ name: "payload", value: { column_position: 2, type: "blob", encoding: "hex" } }
				]
			}
		]
	}`
	defs := compileSchema(t, config)
	eng := New(defs, Options{NColumns: 2, Workers: 1})

	src := memSource{data: "user::42,48690a\nuser::43,zz\n"}
	w := &memWriter{}

	stats, err := eng.Run(context.Background(), src, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The second row's hex is malformed, so its only bin drops and the
	// record is discarded.
	if stats.Written != 1 || stats.EmptyRecords != 1 {
		t.Fatalf("stats = %+v, want 1 written / 1 empty", stats)
	}
	op := w.all()[0]
	if op.Key != "42" {
		t.Errorf("key = %v, want stripped key 42", op.Key)
	}
	b, ok := op.Bins[0].Value.([]byte)
	if !ok || string(b) != "Hi\n" {
		t.Errorf("payload = %#v, want decoded hex", op.Bins[0].Value)
	}
}

func TestRunCanceledContext(t *testing.T) {
	defs := compileSchema(t, usersConfig)
	eng := New(defs, Options{NColumns: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Run(ctx, memSource{data: "1,a,1.0\n"}, &memWriter{})
	if err == nil {
		t.Fatal("want error from canceled context")
	}
}
