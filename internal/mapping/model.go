// Package mapping compiles a parsed loader configuration document into an
// immutable schema: the DSV settings plus an ordered list of mapping
// definitions describing how tokenized columns become destination records
// (key, set, and named bins).
//
// Compilation is fail-fast: the first invalid field at any nesting level
// aborts the whole compile. Every error carries the dotted path to the
// offending field and a rendering of the offending fragment, so operators can
// locate mistakes in the configuration file.
package mapping

// Configuration field names. These are case-sensitive and match the mapping
// document grammar.
const (
	FieldVersion          = "version"
	FieldDSVConfig        = "dsv_config"
	FieldNColumns         = "n_columns"
	FieldDelimiter        = "delimiter"
	FieldHeaderExist      = "header_exist"
	FieldMappings         = "mappings"
	FieldSecondaryMapping = "secondary_mapping"
	FieldKey              = "key"
	FieldSet              = "set"
	FieldBinList          = "binList"
	FieldName             = "name"
	FieldValue            = "value"
	FieldColumnPosition   = "column_position"
	FieldColumnName       = "column_name"
	FieldType             = "type"
	FieldDstType          = "dst_type"
	FieldEncoding         = "encoding"
	FieldRemovePrefix     = "remove_prefix"
)

// ColumnDefinition refers to one source data column, by 0-based position or
// by header name; exactly one selector is set. It optionally carries the
// declared source type, a destination type, an encoding tag, and a literal
// prefix to strip from the raw text before conversion.
type ColumnDefinition struct {
	// Position is the 0-based column index, derived from the 1-based
	// column_position configuration value; -1 when the column is selected
	// by name.
	Position int

	// Name is the header name of the column; empty when selected by
	// position.
	Name string

	// SrcType is the declared type of the raw text (e.g. "string",
	// "integer", "float", "blob", "timestamp"). Empty means undeclared.
	SrcType string

	// DstType optionally names the destination-side type.
	DstType string

	// Encoding optionally tags the value encoding (e.g. "hex" for blobs).
	Encoding string

	// RemovePrefix is a literal prefix stripped from the matched raw text
	// before type conversion at row-processing time.
	RemovePrefix string
}

// ByPosition reports whether the column is selected by position.
func (c ColumnDefinition) ByPosition() bool { return c.Position >= 0 }

// MetaDefinition describes the key or the set of a mapping: either a bare
// static string or a column reference.
type MetaDefinition struct {
	// Static holds the fixed value when IsStatic is true.
	Static   string
	IsStatic bool

	// Column is the source column when IsStatic is false.
	Column ColumnDefinition
}

// StaticMeta returns a MetaDefinition holding a fixed string value.
func StaticMeta(v string) MetaDefinition { return MetaDefinition{Static: v, IsStatic: true} }

// ColumnMeta returns a MetaDefinition backed by a source column.
func ColumnMeta(c ColumnDefinition) MetaDefinition { return MetaDefinition{Column: c} }

// BinDefinition describes one destination field. The bin's name and its
// value are each either a static string or a column reference.
type BinDefinition struct {
	StaticName string
	NameColumn ColumnDefinition
	// NameIsStatic selects between StaticName and NameColumn.
	NameIsStatic bool

	StaticValue string
	ValueColumn ColumnDefinition
	// ValueIsStatic selects between StaticValue and ValueColumn.
	ValueIsStatic bool
}

// MappingDefinition is one compiled mapping: how a data row produces one
// destination record. A compiled schema is an ordered list of these; by
// caller convention exactly one is primary (SecondaryMapping false), but the
// compiler does not enforce that.
//
// MappingDefinition values are never mutated after Compile returns, so one
// compiled schema may be shared, read-only, across any number of workers.
type MappingDefinition struct {
	SecondaryMapping bool
	Key              MetaDefinition
	Set              MetaDefinition
	Bins             []BinDefinition
}
