package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// Field names with a fixed meaning on every record.
const (
	FieldID        = "id"
	FieldGUID      = "guid"
	FieldOwnerID   = "ownerId"
	FieldNamespace = "namespace"
	FieldName      = "fieldName"
)

// ErrMissingGUID is returned when a record has no guid to derive a filename from.
var ErrMissingGUID = errors.New("entry must include a guid field")

// Record is a single entry of a data service endpoint.
//
// Fields holds the entry exactly as the service returns it: a tree of
// strings, numbers, booleans, nil, []any and map[string]any values.
type Record struct {
	Service   string
	Endpoint  string
	Namespace map[string]string
	Fields    map[string]any
}

// recordDocument is the on-disk and on-wire form of a record.
type recordDocument struct {
	XMLNS map[string]string `json:"xmlns"`
	Entry map[string]any    `json:"entry"`
}

// NewRecord creates a record. A nil fields map is replaced with an empty one.
func NewRecord(service, endpoint string, fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Service: service, Endpoint: endpoint, Namespace: map[string]string{}, Fields: fields}
}

func (r *Record) str(name string) string {
	if v, ok := r.Fields[name].(string); ok {
		return v
	}
	return ""
}

// ID returns the record's absolute id, or "" when unset.
func (r *Record) ID() string { return r.str(FieldID) }

// GUID returns the record's guid, or "" when unset.
func (r *Record) GUID() string { return r.str(FieldGUID) }

// OwnerID returns the id of the owning account, or "" when unset.
func (r *Record) OwnerID() string { return r.str(FieldOwnerID) }

// SetID sets the record id. An empty id removes the field.
func (r *Record) SetID(id string) {
	if id == "" {
		delete(r.Fields, FieldID)
		return
	}
	r.Fields[FieldID] = id
}

// SetOwnerID sets the owning account.
func (r *Record) SetOwnerID(owner string) {
	r.Fields[FieldOwnerID] = owner
}

// IsFieldRecord reports whether the record describes a custom field.
func (r *Record) IsFieldRecord() bool {
	return strings.Contains(r.ID(), "Field/")
}

// QualifiedFieldName returns namespace$fieldName for custom field records.
func (r *Record) QualifiedFieldName() string {
	return r.str(FieldNamespace) + "$" + r.str(FieldName)
}

// Directory is the image-relative directory the record is stored in.
func (r *Record) Directory() string {
	return path.Join(r.Service, r.Endpoint)
}

// Filename is the name of the file holding the record inside Directory.
// The guid is path-escaped so it always names a single file.
func (r *Record) Filename() (string, error) {
	guid := r.GUID()
	if guid == "" {
		return "", ErrMissingGUID
	}
	return url.PathEscape(guid) + ".json", nil
}

// Filepath is the image-relative path of the record file.
func (r *Record) Filepath() (string, error) {
	name, err := r.Filename()
	if err != nil {
		return "", err
	}
	return path.Join(r.Directory(), name), nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	ns := make(map[string]string, len(r.Namespace))
	for k, v := range r.Namespace {
		ns[k] = v
	}
	fields, _ := CopyValue(r.Fields).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Service: r.Service, Endpoint: r.Endpoint, Namespace: ns, Fields: fields}
}

// MarshalJSON encodes the record as {"xmlns": ..., "entry": ...}.
func (r *Record) MarshalJSON() ([]byte, error) {
	ns := r.Namespace
	if ns == nil {
		ns = map[string]string{}
	}
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(recordDocument{XMLNS: ns, Entry: fields})
}

// UnmarshalJSON decodes a record document. Service and Endpoint are not part
// of the document and are left untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc recordDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.XMLNS == nil {
		doc.XMLNS = map[string]string{}
	}
	if doc.Entry == nil {
		doc.Entry = map[string]any{}
	}
	r.Namespace = doc.XMLNS
	r.Fields = doc.Entry
	return nil
}

// String renders the record as indented JSON.
func (r *Record) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// Hash is a stable digest of the record's fields.
func (r *Record) Hash() string {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Diff returns a human readable difference between two records' fields,
// or "" when they are equal.
func (r *Record) Diff(other *Record) string {
	return cmp.Diff(r.Fields, other.Fields)
}

// CopyValue deep-copies a decoded JSON value.
func CopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CopyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CopyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i], _ = CopyValue(e).(map[string]any)
		}
		return out
	default:
		return v
	}
}
