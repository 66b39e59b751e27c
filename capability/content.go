package capability

import (
	"encoding/base64"
	"fmt"
)

// Content kinds.
const (
	KindText     = "text"
	KindJSON     = "json"
	KindImage    = "image"
	KindResource = "resource"
)

// Content is the uniform envelope for every tool result, resource read and
// error. When IsError is set, Payload is a human-readable error message.
type Content struct {
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
	MIMEType string `json:"mimeType,omitzero"`
	IsError  bool   `json:"isError,omitzero"`
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{Kind: KindText, Payload: text, MIMEType: "text/plain"}
}

// JSONContent wraps an already-encoded JSON document.
func JSONContent(doc string) Content {
	return Content{Kind: KindJSON, Payload: doc, MIMEType: "application/json"}
}

// ImageContent wraps binary image data, base64 encoded.
func ImageContent(data []byte, mimeType string) Content {
	return Content{Kind: KindImage, Payload: base64.StdEncoding.EncodeToString(data), MIMEType: mimeType}
}

// ErrorContent builds an error envelope carrying a formatted message.
func ErrorContent(format string, args ...any) Content {
	return Content{Kind: KindText, Payload: fmt.Sprintf(format, args...), MIMEType: "text/plain", IsError: true}
}

// Errors returns the first error item in contents, if any.
func Errors(contents []Content) (Content, bool) {
	for _, c := range contents {
		if c.IsError {
			return c, true
		}
	}
	return Content{}, false
}
