package client

import (
	"bytes"
	"encoding/json"
)

// Document is a decoded JSON-API response. Data holds a single primary
// object; List holds the primary objects of collection responses.
type Document struct {
	Data     *Object        `json:"-"`
	List     []Object       `json:"-"`
	Included []Object       `json:"included,omitempty"`
	Errors   []APIError     `json:"errors,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts data as an object, an array or null.
func (d *Document) UnmarshalJSON(b []byte) error {
	type plain Document
	var aux struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	raw := d.Raw
	*d = Document(aux.plain)
	d.Raw = raw

	data := bytes.TrimSpace(aux.Data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		return json.Unmarshal(data, &d.List)
	default:
		d.Data = new(Object)
		return json.Unmarshal(data, d.Data)
	}
	return nil
}

// Object is a JSON-API resource object.
type Object struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	Links         map[string]any          `json:"links,omitempty"`
}

// Attr returns a string attribute, or "".
func (o *Object) Attr(name string) string {
	if o == nil {
		return ""
	}
	s, _ := o.Attributes[name].(string)
	return s
}

// Relationship holds linkage data, which may be a single identifier, a
// list of identifiers, or null.
type Relationship struct {
	Data json.RawMessage `json:"data"`
}

// Identifier is a JSON-API resource identifier.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Identifiers returns the relationship linkage as a list. Malformed data
// yields nil.
func (r Relationship) Identifiers() []Identifier {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		var ids []Identifier
		if json.Unmarshal(data, &ids) != nil {
			return nil
		}
		return ids
	case '{':
		var id Identifier
		if json.Unmarshal(data, &id) != nil {
			return nil
		}
		return []Identifier{id}
	}
	return nil
}

// APIError is a JSON-API error object.
type APIError struct {
	Status string         `json:"status,omitempty"`
	Title  string         `json:"title,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Source map[string]any `json:"source,omitempty"`
}

// MissingResources returns the identifiers the server reports missing
// from the build in doc, or nil.
func MissingResources(doc *Document) []Identifier {
	if doc == nil || doc.Data == nil {
		return nil
	}
	rel, ok := doc.Data.Relationships["missing-resources"]
	if !ok {
		return nil
	}
	return rel.Identifiers()
}
