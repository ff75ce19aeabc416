package ir

// RegistrySpec is the compiled form of a registry definition: the metadata
// schemas and fields, bitstream formats and groups a store is seeded with.
type RegistrySpec struct {
	Schemas []SchemaSpec `json:"schemas"`
	Formats []FormatSpec `json:"formats"`
	Groups  []string     `json:"groups"`
}

// SchemaSpec is one metadata schema and its registered fields.
type SchemaSpec struct {
	Prefix    string      `json:"prefix"`
	Namespace string      `json:"namespace"`
	Fields    []FieldName `json:"fields"`
}

// FormatSpec is one bitstream format.
type FormatSpec struct {
	ShortDescription string   `json:"short_description"`
	MIMEType         string   `json:"mimetype"`
	Extensions       []string `json:"extensions"`
}
