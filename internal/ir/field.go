package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Wildcard is the qualifier that matches any qualifier in filter
// expressions. It is never a valid qualifier on a stored value.
const Wildcard = "*"

// QualifierNone is how archive files spell an absent qualifier.
const QualifierNone = "none"

// MetadataField is one metadata value as read from an item archive or the
// repository. Qualifier and Language are empty when absent.
type MetadataField struct {
	Schema    string `json:"schema"`
	Element   string `json:"element"`
	Qualifier string `json:"qualifier,omitempty"`
	Language  string `json:"language,omitempty"`
	Value     string `json:"value"`
}

// NewMetadataField validates and builds a MetadataField.
//
// Schema and element must be non-blank. A qualifier of "none" is treated as
// absent; the wildcard qualifier is rejected.
func NewMetadataField(schema, element, qualifier, language, value string) (MetadataField, error) {
	schema = strings.TrimSpace(schema)
	element = strings.TrimSpace(element)
	qualifier = strings.TrimSpace(qualifier)
	language = strings.TrimSpace(language)

	if schema == "" {
		return MetadataField{}, NewParseError("metadata field", "schema is required")
	}
	if element == "" {
		return MetadataField{}, NewParseError("metadata field", "element is required")
	}
	if qualifier == QualifierNone {
		qualifier = ""
	}
	if qualifier == Wildcard {
		return MetadataField{}, NewParseError("metadata field",
			fmt.Sprintf("wildcard qualifier not allowed on %s.%s", schema, element))
	}

	return MetadataField{
		Schema:    schema,
		Element:   element,
		Qualifier: qualifier,
		Language:  language,
		Value:     value,
	}, nil
}

// Name returns the compound field name of f.
func (f MetadataField) Name() FieldName {
	return FieldName{Schema: f.Schema, Element: f.Element, Qualifier: f.Qualifier}
}

// Matches reports whether f carries the field named by candidate.
//
// Schema and element must be equal. Qualifiers match when both are absent or
// both are equal; with allowWildcard a candidate qualifier of "*" matches any
// qualifier of f, including none. A malformed candidate never matches.
func (f MetadataField) Matches(candidate string, allowWildcard bool) bool {
	name, err := ParseFieldName(candidate, allowWildcard)
	if err != nil {
		return false
	}
	return name.Matches(f.Name())
}

// SameValue reports whether two values are equal after NFC normalization.
func SameValue(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// FieldName is a compound metadata field name: schema.element[.qualifier].
type FieldName struct {
	Schema    string `json:"schema"`
	Element   string `json:"element"`
	Qualifier string `json:"qualifier,omitempty"`
}

// ParseFieldName parses "schema.element" or "schema.element.qualifier".
// Every component must be non-empty. A "*" qualifier is accepted only when
// allowWildcard is set.
func ParseFieldName(s string, allowWildcard bool) (FieldName, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return FieldName{}, NewParseError("field name",
			fmt.Sprintf("%q must have 2 or 3 dot-separated components", s))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return FieldName{}, NewParseError("field name",
				fmt.Sprintf("%q has an empty component", s))
		}
	}

	name := FieldName{Schema: parts[0], Element: parts[1]}
	if len(parts) == 3 {
		if parts[2] == Wildcard && !allowWildcard {
			return FieldName{}, NewParseError("field name",
				fmt.Sprintf("%q: wildcard qualifier not allowed here", s))
		}
		name.Qualifier = parts[2]
	}
	return name, nil
}

// MustParseFieldName is like ParseFieldName but panics on error.
// Intended for constants and tests.
func MustParseFieldName(s string) FieldName {
	name, err := ParseFieldName(s, false)
	if err != nil {
		panic(err)
	}
	return name
}

// Matches reports whether other is selected by n. Wildcard qualifiers in n
// match any qualifier of other.
func (n FieldName) Matches(other FieldName) bool {
	if n.Schema != other.Schema || n.Element != other.Element {
		return false
	}
	if n.Qualifier == Wildcard {
		return true
	}
	return n.Qualifier == other.Qualifier
}

// HasWildcard reports whether the qualifier is the wildcard.
func (n FieldName) HasWildcard() bool {
	return n.Qualifier == Wildcard
}

// String renders the compound name.
func (n FieldName) String() string {
	if n.Qualifier == "" {
		return n.Schema + "." + n.Element
	}
	return n.Schema + "." + n.Element + "." + n.Qualifier
}

// Well-known fields.
var (
	FieldIdentifierURI = FieldName{Schema: "dc", Element: "identifier", Qualifier: "uri"}
	FieldProvenance    = FieldName{Schema: "dc", Element: "description", Qualifier: "provenance"}
)

// ParseFieldValue parses the textual form "schema.element[.qualifier][@language]=value".
// The value is everything after the first "=" and may itself contain "=".
func ParseFieldValue(s string) (MetadataField, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return MetadataField{}, NewParseError("field value",
			fmt.Sprintf("%q: want name[@lang]=value", s))
	}
	name, lang, _ := strings.Cut(name, "@")

	fn, err := ParseFieldName(name, false)
	if err != nil {
		return MetadataField{}, err
	}
	return NewMetadataField(fn.Schema, fn.Element, fn.Qualifier, lang, value)
}

// String renders f in the form accepted by ParseFieldValue.
func (f MetadataField) String() string {
	name := f.Name().String()
	if f.Language != "" {
		name += "@" + f.Language
	}
	return name + "=" + f.Value
}
