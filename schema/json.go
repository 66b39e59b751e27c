// Package schema builds the JSON Schema documents that providers publish as
// tool input schemas.
package schema

import "encoding/json"

const URL = "http://json-schema.org/draft-07/schema#"

type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Boolean Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
)

// JSON is a way to describe a JSON Schema
type JSON struct {
	Type                 interface{}      `json:"type,omitzero"` // Can be Type or []interface{} for union types like ["string", "null"]
	Description          string           `json:"description,omitzero"`
	Properties           map[string]*JSON `json:"properties,omitzero"`
	Items                *JSON            `json:"items,omitzero"`
	Enum                 []string         `json:"enum,omitzero"`
	Required             []string         `json:"required,omitzero"`
	AdditionalProperties *bool            `json:"additionalProperties,omitzero"`
	Schema               string           `json:"$schema,omitzero"`
	OneOf                []*JSON          `json:"oneOf,omitzero"`
	AnyOf                []*JSON          `json:"anyOf,omitzero"`
	AllOf                []*JSON          `json:"allOf,omitzero"`
}

// Prop describes a scalar property.
func Prop(t Type, description string) *JSON {
	return &JSON{Type: t, Description: description}
}

// NewObject builds an object schema with the given properties, marking the
// listed names as required.
func NewObject(properties map[string]*JSON, required ...string) *JSON {
	if properties == nil {
		properties = map[string]*JSON{}
	}
	return &JSON{
		Type:       Object,
		Properties: properties,
		Required:   required,
	}
}

// String renders the schema as compact JSON. It panics on marshal failure,
// which can only happen for a malformed Type value.
func (s *JSON) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		panic("schema: " + err.Error())
	}
	return string(data)
}
