package archive

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
)

// Archive file names.
const (
	DublinCoreFile     = "dublin_core.xml"
	SchemaFilePrefix   = "metadata_"
	SchemaFileSuffix   = ".xml"
	SuppressUndoMarker = "suppress_undo"
	defaultSchema      = "dc"
)

type dublinCore struct {
	XMLName xml.Name  `xml:"dublin_core"`
	Schema  string    `xml:"schema,attr,omitempty"`
	Values  []dcValue `xml:"dcvalue"`
}

type dcValue struct {
	Element   string `xml:"element,attr"`
	Qualifier string `xml:"qualifier,attr,omitempty"`
	Language  string `xml:"language,attr,omitempty"`
	Value     string `xml:",chardata"`
}

// readMetadataFile parses one dublin_core.xml or metadata_<schema>.xml file.
func readMetadataFile(path string) ([]ir.MetadataField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return parseMetadata(filepath.Base(path), data)
}

func parseMetadata(name string, data []byte) ([]ir.MetadataField, error) {
	var doc dublinCore
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ir.Error{Kind: ir.KindParse, Op: name, Message: "malformed metadata XML", Err: err}
	}

	schema := strings.TrimSpace(doc.Schema)
	if schema == "" {
		schema = defaultSchema
	}

	fields := make([]ir.MetadataField, 0, len(doc.Values))
	for i, v := range doc.Values {
		f, err := ir.NewMetadataField(schema, v.Element, v.Qualifier, v.Language, strings.TrimSpace(v.Value))
		if err != nil {
			return nil, fmt.Errorf("%s: dcvalue %d: %w", name, i+1, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// readArchiveMetadata reads dublin_core.xml (required) then every
// metadata_<schema>.xml in name order.
func readArchiveMetadata(dir string) ([]ir.MetadataField, error) {
	fields, err := readMetadataFile(filepath.Join(dir, DublinCoreFile))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read item directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, SchemaFilePrefix) || !strings.HasSuffix(name, SchemaFileSuffix) {
			continue
		}
		more, err := readMetadataFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		fields = append(fields, more...)
	}
	return fields, nil
}

// marshalMetadata renders fields of one schema as a metadata file.
func marshalMetadata(schema string, fields []ir.MetadataField) ([]byte, error) {
	doc := dublinCore{Schema: schema}
	for _, f := range fields {
		q := f.Qualifier
		if q == "" {
			q = ir.QualifierNone
		}
		doc.Values = append(doc.Values, dcValue{
			Element:   f.Element,
			Qualifier: q,
			Language:  f.Language,
			Value:     f.Value,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", schema, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteMetadata writes dublin_core.xml (always) and one
// metadata_<schema>.xml per other schema present in fields.
func WriteMetadata(dir string, fields []ir.MetadataField) error {
	bySchema := map[string][]ir.MetadataField{}
	for _, f := range fields {
		bySchema[f.Schema] = append(bySchema[f.Schema], f)
	}

	data, err := marshalMetadata(defaultSchema, bySchema[defaultSchema])
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, DublinCoreFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", DublinCoreFile, err)
	}

	schemas := make([]string, 0, len(bySchema))
	for s := range bySchema {
		if s != defaultSchema {
			schemas = append(schemas, s)
		}
	}
	sort.Strings(schemas)

	for _, s := range schemas {
		data, err := marshalMetadata(s, bySchema[s])
		if err != nil {
			return err
		}
		name := SchemaFilePrefix + s + SchemaFileSuffix
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
