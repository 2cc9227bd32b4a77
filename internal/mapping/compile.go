package mapping

import (
	"fmt"
	"strconv"

	"dsvload/internal/relaxedjson"
)

// Compile walks a parsed configuration document and produces the DSV
// settings plus the ordered list of mapping definitions.
//
// The returned map holds the stringized document-level settings under the
// Field* keys: version and n_columns always, delimiter and header_exist when
// present. A document without a mappings list compiles successfully to an
// empty definition list.
//
// The first invalid field aborts the compile; no partial schema is ever
// returned alongside an error.
func Compile(doc relaxedjson.Value) (map[string]string, []MappingDefinition, error) {
	if doc.Kind() != relaxedjson.KindMap {
		return nil, nil, errAt(ErrInvalidShape, "", doc.String(), "configuration root must be an object")
	}

	cfg := make(map[string]string, 4)

	version, ok := doc.Field(FieldVersion)
	if !ok {
		return nil, nil, errAt(ErrMissingField, FieldVersion, "", "%q key is missing in config file", FieldVersion)
	}
	cfg[FieldVersion] = scalarText(version)

	dsv, ok := doc.Field(FieldDSVConfig)
	if !ok {
		return nil, nil, errAt(ErrMissingField, FieldDSVConfig, "", "%q key is missing in config file", FieldDSVConfig)
	}
	if dsv.Kind() != relaxedjson.KindMap {
		return nil, nil, errAt(ErrInvalidShape, FieldDSVConfig, dsv.String(), "%s must be an object", FieldDSVConfig)
	}
	nCols, ok := dsv.Field(FieldNColumns)
	if !ok {
		return nil, nil, errAt(ErrMissingField, FieldDSVConfig+"."+FieldNColumns, dsv.String(),
			"%q key is missing in config file", FieldNColumns)
	}
	cfg[FieldNColumns] = scalarText(nCols)
	if delim, ok := dsv.Field(FieldDelimiter); ok {
		cfg[FieldDelimiter] = scalarText(delim)
	}
	if header, ok := dsv.Field(FieldHeaderExist); ok {
		cfg[FieldHeaderExist] = scalarText(header)
	}

	defs, err := compileMappings(doc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, defs, nil
}

func compileMappings(doc relaxedjson.Value) ([]MappingDefinition, error) {
	node, ok := doc.Field(FieldMappings)
	if !ok {
		// Absent mappings list is not an error.
		return nil, nil
	}
	if node.Kind() != relaxedjson.KindList {
		return nil, errAt(ErrInvalidShape, FieldMappings, node.String(), "%s must be an array", FieldMappings)
	}
	defs := make([]MappingDefinition, 0, node.Len())
	for i := 0; i < node.Len(); i++ {
		elem, _ := node.At(i)
		path := fmt.Sprintf("%s[%d]", FieldMappings, i)
		def, err := compileMapping(elem, path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func compileMapping(node relaxedjson.Value, path string) (MappingDefinition, error) {
	var def MappingDefinition

	if node.Kind() != relaxedjson.KindMap {
		return def, errAt(ErrInvalidShape, path, node.String(), "mapping must be an object")
	}

	if sec, ok := node.Field(FieldSecondaryMapping); ok {
		switch {
		case sec.Kind() == relaxedjson.KindBool:
			def.SecondaryMapping, _ = sec.Bool()
		case sec.IsTextual():
			s, _ := sec.Text()
			b, err := strconv.ParseBool(s)
			if err != nil {
				return def, errAt(ErrInvalidShape, path+"."+FieldSecondaryMapping, node.String(),
					"%s is not a boolean: %q", FieldSecondaryMapping, s)
			}
			def.SecondaryMapping = b
		default:
			return def, errAt(ErrInvalidShape, path+"."+FieldSecondaryMapping, node.String(),
				"%s must be a boolean or a boolean string", FieldSecondaryMapping)
		}
	}

	keyNode, ok := node.Field(FieldKey)
	if !ok {
		return def, errAt(ErrMissingField, path+"."+FieldKey, node.String(),
			"%q key is missing in mapping", FieldKey)
	}
	key, err := compileMeta(keyNode, path+"."+FieldKey, false)
	if err != nil {
		return def, err
	}
	def.Key = key

	setNode, ok := node.Field(FieldSet)
	if !ok {
		return def, errAt(ErrMissingField, path+"."+FieldSet, node.String(),
			"%q key is missing in mapping", FieldSet)
	}
	if setNode.IsTextual() {
		s, _ := setNode.Text()
		def.Set = StaticMeta(s)
	} else {
		set, err := compileMeta(setNode, path+"."+FieldSet, true)
		if err != nil {
			return def, err
		}
		def.Set = set
	}

	binList, ok := node.Field(FieldBinList)
	if !ok {
		return def, errAt(ErrMissingField, path+"."+FieldBinList, node.String(),
			"%q key is missing in mapping", FieldBinList)
	}
	if binList.Kind() != relaxedjson.KindList || binList.Len() == 0 {
		return def, errAt(ErrEmptyBinList, path+"."+FieldBinList, binList.String(),
			"%s must be a non-empty array", FieldBinList)
	}
	def.Bins = make([]BinDefinition, 0, binList.Len())
	for i := 0; i < binList.Len(); i++ {
		elem, _ := binList.At(i)
		bin, err := compileBin(elem, fmt.Sprintf("%s.%s[%d]", path, FieldBinList, i))
		if err != nil {
			return def, err
		}
		def.Bins = append(def.Bins, bin)
	}

	return def, nil
}

// compileMeta compiles the key or set definition of a mapping. A set without
// a declared type defaults its source type to "string"; the key has no
// implicit default.
func compileMeta(node relaxedjson.Value, path string, isSet bool) (MetaDefinition, error) {
	if node.Kind() != relaxedjson.KindMap {
		return MetaDefinition{}, errAt(ErrInvalidShape, path, node.String(), "definition must be an object")
	}
	col, err := compileSelector(node, path)
	if err != nil {
		return MetaDefinition{}, err
	}
	col.SrcType, err = textField(node, FieldType, path)
	if err != nil {
		return MetaDefinition{}, err
	}
	if isSet && col.SrcType == "" {
		col.SrcType = "string"
	}
	col.RemovePrefix, err = textField(node, FieldRemovePrefix, path)
	if err != nil {
		return MetaDefinition{}, err
	}
	return ColumnMeta(col), nil
}

func compileBin(node relaxedjson.Value, path string) (BinDefinition, error) {
	var bin BinDefinition

	if node.Kind() != relaxedjson.KindMap {
		return bin, errAt(ErrInvalidShape, path, node.String(), "bin must be an object")
	}

	nameNode, ok := node.Field(FieldName)
	if !ok {
		return bin, errAt(ErrMissingField, path+"."+FieldName, node.String(),
			"%q key is missing in bin", FieldName)
	}
	switch {
	case nameNode.IsTextual():
		bin.StaticName, _ = nameNode.Text()
		bin.NameIsStatic = true
	case nameNode.Kind() == relaxedjson.KindMap:
		col, err := compileSelector(nameNode, path+"."+FieldName)
		if err != nil {
			return bin, err
		}
		bin.NameColumn = col
	default:
		return bin, errAt(ErrInvalidShape, path+"."+FieldName, nameNode.String(),
			"bin name must be a string or a column reference")
	}

	valueNode, ok := node.Field(FieldValue)
	if !ok {
		return bin, errAt(ErrMissingField, path+"."+FieldValue, node.String(),
			"%q key is missing in bin", FieldValue)
	}
	switch {
	case valueNode.IsTextual():
		bin.StaticValue, _ = valueNode.Text()
		bin.ValueIsStatic = true
	case valueNode.Kind() == relaxedjson.KindMap:
		col, err := compileSelector(valueNode, path+"."+FieldValue)
		if err != nil {
			return bin, err
		}
		col.SrcType, err = textField(valueNode, FieldType, path+"."+FieldValue)
		if err != nil {
			return bin, err
		}
		if col.SrcType == "" {
			return bin, errAt(ErrMissingField, path+"."+FieldValue+"."+FieldType, valueNode.String(),
				"%q key is missing in bin value", FieldType)
		}
		if col.DstType, err = textField(valueNode, FieldDstType, path+"."+FieldValue); err != nil {
			return bin, err
		}
		if col.Encoding, err = textField(valueNode, FieldEncoding, path+"."+FieldValue); err != nil {
			return bin, err
		}
		if col.RemovePrefix, err = textField(valueNode, FieldRemovePrefix, path+"."+FieldValue); err != nil {
			return bin, err
		}
		bin.ValueColumn = col
	default:
		return bin, errAt(ErrInvalidShape, path+"."+FieldValue, valueNode.String(),
			"bin value must be a string or a column reference")
	}

	return bin, nil
}

// compileSelector resolves the column_position/column_name pair of a column
// reference. Exactly one must be present; column_position is 1-based in the
// document and stored 0-based.
func compileSelector(node relaxedjson.Value, path string) (ColumnDefinition, error) {
	col := ColumnDefinition{Position: -1}

	posNode, hasPos := node.Field(FieldColumnPosition)
	nameNode, hasName := node.Field(FieldColumnName)
	switch {
	case hasPos && hasName:
		return col, errAt(ErrInvalidColumnRef, path, node.String(),
			"%s and %s are mutually exclusive", FieldColumnPosition, FieldColumnName)
	case !hasPos && !hasName:
		return col, errAt(ErrInvalidColumnRef, path, node.String(),
			"column reference needs %s or %s", FieldColumnPosition, FieldColumnName)
	case hasPos:
		pos, err := intText(posNode)
		if err != nil {
			return col, errAt(ErrInvalidColumnRef, path+"."+FieldColumnPosition, node.String(),
				"%s is not an integer: %s", FieldColumnPosition, posNode)
		}
		if pos < 1 {
			return col, errAt(ErrInvalidColumnRef, path+"."+FieldColumnPosition, node.String(),
				"%s is 1-based and must be >= 1, got %d", FieldColumnPosition, pos)
		}
		col.Position = int(pos) - 1
	default:
		name, ok := nameNode.Text()
		if !ok || name == "" {
			return col, errAt(ErrInvalidColumnRef, path+"."+FieldColumnName, node.String(),
				"%s must be a non-empty string", FieldColumnName)
		}
		col.Name = name
	}
	return col, nil
}

// intText accepts an integer node or a textual integer such as "3".
func intText(v relaxedjson.Value) (int64, error) {
	if n, ok := v.Int(); ok {
		return n, nil
	}
	if s, ok := v.Text(); ok {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("not an integer: %s", v)
}

// textField returns the string payload of an optional field; absent fields
// yield "". A present, non-textual field is a shape error.
func textField(node relaxedjson.Value, field, path string) (string, error) {
	v, ok := node.Field(field)
	if !ok {
		return "", nil
	}
	s, ok := v.Text()
	if !ok {
		return "", errAt(ErrInvalidShape, path+"."+field, node.String(), "%s must be a string", field)
	}
	return s, nil
}

// scalarText renders a scalar setting the way it appears in the document:
// strings verbatim, numbers and booleans in their literal form.
func scalarText(v relaxedjson.Value) string {
	if s, ok := v.Text(); ok {
		return s
	}
	return v.String()
}
