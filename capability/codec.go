package capability

import (
	"encoding/json"
	"fmt"
)

// EncodeDescriptors renders descriptors as a JSON array suitable for the
// persisted cache.
func EncodeDescriptors(ds []Descriptor) (string, error) {
	if ds == nil {
		ds = []Descriptor{}
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("encode descriptors: %w", err)
	}
	return string(data), nil
}

// SplitRecords splits a JSON array into its raw elements without decoding
// them, so one bad element does not poison the others.
func SplitRecords(data string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("decode record list: %w", err)
	}
	return records, nil
}

// DecodeDescriptor decodes a single cached record. All three fields are
// required.
func DecodeDescriptor(raw json.RawMessage) (Descriptor, error) {
	var fields struct {
		ProcessID      *string `json:"processId"`
		EntryID        *string `json:"entryId"`
		CapabilityType *string `json:"capabilityType"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	switch {
	case fields.ProcessID == nil || *fields.ProcessID == "":
		return Descriptor{}, fmt.Errorf("decode descriptor: missing processId")
	case fields.EntryID == nil || *fields.EntryID == "":
		return Descriptor{}, fmt.Errorf("decode descriptor: missing entryId")
	case fields.CapabilityType == nil:
		return Descriptor{}, fmt.Errorf("decode descriptor: missing capabilityType")
	}
	return Descriptor{
		ProcessID:      *fields.ProcessID,
		EntryID:        *fields.EntryID,
		CapabilityType: *fields.CapabilityType,
	}, nil
}

// EncodeContents renders a content list as JSON.
func EncodeContents(contents []Content) (string, error) {
	if len(contents) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(contents)
	if err != nil {
		return "", fmt.Errorf("encode contents: %w", err)
	}
	return string(data), nil
}

// DecodeContents parses a JSON content list.
func DecodeContents(src string) ([]Content, error) {
	if src == "" || src == "[]" {
		return nil, nil
	}
	var contents []Content
	if err := json.Unmarshal([]byte(src), &contents); err != nil {
		return nil, fmt.Errorf("decode contents: %w", err)
	}
	return contents, nil
}
