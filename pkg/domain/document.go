package domain

import "fmt"

// DocKind filters retrieval results by document type.
type DocKind string

const (
	DocTable    DocKind = "table"
	DocColumn   DocKind = "column"
	DocEvidence DocKind = "evidence"
)

// RetrievedDocument is a ranked result of the retrieval collaborator.
// It is read-only; use Clone before attaching local metadata.
type RetrievedDocument struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Clone copies the document and its top-level metadata.
func (d RetrievedDocument) Clone() RetrievedDocument {
	meta := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	d.Metadata = meta
	return d
}

// MetaString reads a metadata field as a string.
func (d RetrievedDocument) MetaString(key string) string {
	v, ok := d.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MetaStrings reads a metadata field that may be a list or a single string.
func (d RetrievedDocument) MetaStrings(key string) []string {
	switch v := d.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Metadata keys shared by retrievers and the schema builder.
const (
	MetaName        = "name"
	MetaTableName   = "tableName"
	MetaDescription = "description"
	MetaType        = "type"
	MetaPrimaryKey  = "primaryKey"
	MetaForeignKey  = "foreignKey"
	MetaSamples     = "samples"
	MetaKind        = "kind"
)
