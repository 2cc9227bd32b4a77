package mapping

import (
	"errors"
	"strings"
	"testing"

	"dsvload/internal/relaxedjson"
)

func parseDoc(t *testing.T, text string) relaxedjson.Value {
	t.Helper()
	v, err := relaxedjson.Parse(text, relaxedjson.Options{})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return v
}

const sampleConfig = `{
  version: "1.0",
  dsv_config: {n_columns: 4, delimiter: "::", header_exist: true},
  mappings: [
    {
      key: {column_position: 1, type: "string", remove_prefix: "id-"},
      set: "users",
      binList: [
        {name: "age", value: {column_name: "age", type: "integer"}},
        {name: {column_position: 2}, value: "static"},
        {name: "photo", value: {column_position: 3, type: "blob", encoding: "hex", dst_type: "blob"}}
      ]
    },
    {
      secondary_mapping: "true",
      key: {column_name: "age", type: "integer"},
      set: {column_position: 4},
      binList: [{name: "user_id", value: {column_position: 1, type: "string"}}]
    }
  ]
}`

func TestCompileSampleConfig(t *testing.T) {
	cfg, defs, err := Compile(parseDoc(t, sampleConfig))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if got := cfg[FieldVersion]; got != "1.0" {
		t.Fatalf("version=%q want 1.0", got)
	}
	if got := cfg[FieldNColumns]; got != "4" {
		t.Fatalf("n_columns=%q want 4", got)
	}
	if got := cfg[FieldDelimiter]; got != "::" {
		t.Fatalf("delimiter=%q want ::", got)
	}
	if got := cfg[FieldHeaderExist]; got != "true" {
		t.Fatalf("header_exist=%q want true", got)
	}

	if len(defs) != 2 {
		t.Fatalf("len(defs)=%d want 2", len(defs))
	}

	primary := defs[0]
	if primary.SecondaryMapping {
		t.Fatalf("defs[0] should be primary")
	}
	if primary.Key.IsStatic {
		t.Fatalf("key should be column-backed")
	}
	if got := primary.Key.Column.Position; got != 0 {
		t.Fatalf("key position=%d want 0 (1-based converted)", got)
	}
	if got := primary.Key.Column.RemovePrefix; got != "id-" {
		t.Fatalf("key remove_prefix=%q want id-", got)
	}
	if !primary.Set.IsStatic || primary.Set.Static != "users" {
		t.Fatalf("set=%+v want static users", primary.Set)
	}
	if len(primary.Bins) != 3 {
		t.Fatalf("len(bins)=%d want 3", len(primary.Bins))
	}
	age := primary.Bins[0]
	if !age.NameIsStatic || age.StaticName != "age" {
		t.Fatalf("bins[0] name=%+v want static age", age)
	}
	if age.ValueIsStatic || age.ValueColumn.Name != "age" || age.ValueColumn.SrcType != "integer" {
		t.Fatalf("bins[0] value=%+v want column age/integer", age.ValueColumn)
	}
	posName := primary.Bins[1]
	if posName.NameIsStatic || posName.NameColumn.Position != 1 {
		t.Fatalf("bins[1] name=%+v want column position 1", posName.NameColumn)
	}
	if !posName.ValueIsStatic || posName.StaticValue != "static" {
		t.Fatalf("bins[1] value=%+v want static", posName)
	}
	photo := primary.Bins[2]
	if photo.ValueColumn.Encoding != "hex" || photo.ValueColumn.DstType != "blob" {
		t.Fatalf("bins[2] value=%+v want hex/blob", photo.ValueColumn)
	}

	secondary := defs[1]
	if !secondary.SecondaryMapping {
		t.Fatalf("defs[1] should be secondary (string \"true\")")
	}
	if secondary.Key.Column.Name != "age" || secondary.Key.Column.SrcType != "integer" {
		t.Fatalf("secondary key=%+v", secondary.Key.Column)
	}
	if secondary.Set.IsStatic {
		t.Fatalf("secondary set should be column-backed")
	}
	if got := secondary.Set.Column.SrcType; got != "string" {
		t.Fatalf("set src type=%q want default string", got)
	}
	if got := secondary.Set.Column.Position; got != 3 {
		t.Fatalf("set position=%d want 3", got)
	}
}

func TestCompileWithoutMappingsYieldsEmptyList(t *testing.T) {
	cfg, defs, err := Compile(parseDoc(t, `{"version":"1","dsv_config":{"n_columns":"3"}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := cfg[FieldNColumns]; got != "3" {
		t.Fatalf("n_columns=%q want 3", got)
	}
	if len(defs) != 0 {
		t.Fatalf("len(defs)=%d want 0", len(defs))
	}
}

func TestCompileMissingNColumnsFails(t *testing.T) {
	_, _, err := Compile(parseDoc(t, `{version: "1", dsv_config: {delimiter: ","}}`))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err=%v want ErrMissingField", err)
	}
	var merr *Error
	if !errors.As(err, &merr) {
		t.Fatalf("err=%v want *Error", err)
	}
	if want := FieldDSVConfig + "." + FieldNColumns; merr.Path != want {
		t.Fatalf("path=%q want %q", merr.Path, want)
	}
}

func TestCompileMissingVersionFails(t *testing.T) {
	_, _, err := Compile(parseDoc(t, `{dsv_config: {n_columns: 3}}`))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err=%v want ErrMissingField", err)
	}
}

func TestCompileBinValueWithoutSelectorFailsWholeCompile(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{
	    key: {column_position: 1},
	    set: "s",
	    binList: [{name: "b", value: {type: "string"}}]
	  }]
	}`)
	_, defs, err := Compile(doc)
	if !errors.Is(err, ErrInvalidColumnRef) {
		t.Fatalf("err=%v want ErrInvalidColumnRef", err)
	}
	if defs != nil {
		t.Fatalf("defs=%v want nil on failure", defs)
	}
	var merr *Error
	if !errors.As(err, &merr) {
		t.Fatalf("err=%v want *Error", err)
	}
	if want := "mappings[0].binList[0].value"; merr.Path != want {
		t.Fatalf("path=%q want %q", merr.Path, want)
	}
	if !strings.Contains(merr.Fragment, `"type"`) {
		t.Fatalf("fragment %q should render the offending object", merr.Fragment)
	}
}

func TestCompileColumnRefWithBothSelectorsFails(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{
	    key: {column_position: 1, column_name: "id"},
	    set: "s",
	    binList: [{name: "b", value: "v"}]
	  }]
	}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrInvalidColumnRef) {
		t.Fatalf("err=%v want ErrInvalidColumnRef", err)
	}
}

func TestCompileBinValueColumnRequiresType(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{
	    key: {column_position: 1},
	    set: "s",
	    binList: [{name: "b", value: {column_position: 2}}]
	  }]
	}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err=%v want ErrMissingField", err)
	}
	var merr *Error
	if !errors.As(err, &merr) || !strings.HasSuffix(merr.Path, "."+FieldType) {
		t.Fatalf("err=%v want path ending in .type", err)
	}
}

func TestCompileMissingKeyInMappingFails(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{set: "s", binList: [{name: "b", value: "v"}]}]
	}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err=%v want ErrMissingField", err)
	}
}

func TestCompileEmptyBinListFails(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{key: {column_position: 1}, set: "s", binList: []}]
	}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrEmptyBinList) {
		t.Fatalf("err=%v want ErrEmptyBinList", err)
	}
}

func TestCompileMappingsMustBeArray(t *testing.T) {
	doc := parseDoc(t, `{version: "1", dsv_config: {n_columns: 2}, mappings: {}}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("err=%v want ErrInvalidShape", err)
	}
}

func TestCompileSecondMappingFailureAbortsAll(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [
	    {key: {column_position: 1}, set: "s", binList: [{name: "b", value: "v"}]},
	    {key: {}, set: "s", binList: [{name: "b", value: "v"}]}
	  ]
	}`)
	_, defs, err := Compile(doc)
	if err == nil {
		t.Fatalf("expected failure from second mapping")
	}
	if defs != nil {
		t.Fatalf("defs=%v want nil, compile is all-or-nothing", defs)
	}
	var merr *Error
	if !errors.As(err, &merr) || !strings.HasPrefix(merr.Path, "mappings[1]") {
		t.Fatalf("err=%v want path under mappings[1]", err)
	}
}

func TestCompileNonObjectRootFails(t *testing.T) {
	doc := parseDoc(t, `[1, 2]`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("err=%v want ErrInvalidShape", err)
	}
}

func TestCompileBadSecondaryMappingString(t *testing.T) {
	doc := parseDoc(t, `{
	  version: "1",
	  dsv_config: {n_columns: 2},
	  mappings: [{secondary_mapping: "maybe", key: {column_position: 1}, set: "s",
	              binList: [{name: "b", value: "v"}]}]
	}`)
	_, _, err := Compile(doc)
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("err=%v want ErrInvalidShape", err)
	}
}
