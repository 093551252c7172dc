package shotgrid

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Filter is a single [field, relation, value] search condition.
type Filter struct {
	Field    string
	Relation string
	Value    any
}

// Is matches records whose field equals value.
func Is(field string, value any) Filter {
	return Filter{Field: field, Relation: "is", Value: value}
}

// Contains matches records whose text field contains value.
func Contains(field, value string) Filter {
	return Filter{Field: field, Relation: "contains", Value: value}
}

// MarshalJSON encodes the filter in the api3 array form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Relation, f.Value})
}

// EntityRef links to another entity, as used in entity and multi-entity fields.
type EntityRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// Record is an entity returned by the API. Attributes and relationship
// data are merged into Fields.
type Record struct {
	Type   string
	ID     int
	Fields map[string]any
}

type wireRecord struct {
	Type          string                     `json:"type"`
	ID            int                        `json:"id"`
	Attributes    map[string]any             `json:"attributes"`
	Relationships map[string]json.RawMessage `json:"relationships"`
}

// UnmarshalJSON decodes the REST representation of an entity.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Type = wire.Type
	r.ID = wire.ID
	r.Fields = make(map[string]any, len(wire.Attributes)+len(wire.Relationships))
	for key, value := range wire.Attributes {
		r.Fields[key] = value
	}
	for key, raw := range wire.Relationships {
		var rel struct {
			Data any `json:"data"`
		}
		if err := json.Unmarshal(raw, &rel); err != nil {
			return fmt.Errorf("relationship %s: %w", key, err)
		}
		r.Fields[key] = rel.Data
	}
	return nil
}

// String returns a text field, or "" when it is unset or not text.
func (r Record) String(field string) string {
	value, _ := r.Fields[field].(string)
	return value
}

// Entity returns a single-entity field.
func (r Record) Entity(field string) (EntityRef, bool) {
	raw, ok := r.Fields[field].(map[string]any)
	if !ok {
		return EntityRef{}, false
	}
	ref := EntityRef{}
	ref.ID = toInt(raw["id"])
	ref.Name, _ = raw["name"].(string)
	ref.Type, _ = raw["type"].(string)
	return ref, true
}

func toInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// APIError is returned when ShotGrid answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
}

// ErrorDetail is one entry of the errors array in a failed response.
type ErrorDetail struct {
	Status int    `json:"status"`
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	var parts []string
	for _, detail := range e.Errors {
		msg := strings.TrimSpace(detail.Title)
		if d := strings.TrimSpace(detail.Detail); d != "" && d != msg {
			if msg != "" {
				msg += ": "
			}
			msg += d
		}
		if msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("shotgrid returned %d", e.StatusCode)
	}
	return strings.Join(parts, "; ")
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Errors []ErrorDetail `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Errors = payload.Errors
	}
	return apiErr
}
