package mcp

import "github.com/bpowers/go-modelcontext/capability"

const jsonMIMEType = "application/json"

// toBlocks converts provider content to wire blocks. Each block carries its
// own error flag; the result-level flag is set when any item is an error,
// for peers that only read that.
func toBlocks(contents []capability.Content) ([]ContentBlock, bool) {
	blocks := make([]ContentBlock, 0, len(contents))
	isError := false
	for _, c := range contents {
		if c.IsError {
			isError = true
		}
		var b ContentBlock
		switch c.Kind {
		case capability.KindImage:
			b = ContentBlock{Type: "image", Data: c.Payload, MIMEType: c.MIMEType}
		case capability.KindResource:
			b = ContentBlock{Type: "resource", Text: c.Payload, MIMEType: c.MIMEType}
		case capability.KindJSON:
			mime := c.MIMEType
			if mime == "" {
				mime = jsonMIMEType
			}
			b = ContentBlock{Type: "text", Text: c.Payload, MIMEType: mime}
		default:
			b = ContentBlock{Type: "text", Text: c.Payload, MIMEType: c.MIMEType}
		}
		b.IsError = c.IsError
		blocks = append(blocks, b)
	}
	return blocks, isError
}

// fromBlocks converts wire blocks back to provider content. Per-block error
// flags win; a peer that sets none (the go-sdk bridge, for one) only
// reports isError on the result, and then every text block is an error
// item.
func fromBlocks(blocks []ContentBlock, isError bool) []capability.Content {
	perBlock := false
	for _, b := range blocks {
		if b.IsError {
			perBlock = true
			break
		}
	}

	contents := make([]capability.Content, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "image":
			contents = append(contents, capability.Content{Kind: capability.KindImage, Payload: b.Data, MIMEType: b.MIMEType, IsError: b.IsError})
		case "resource":
			contents = append(contents, capability.Content{Kind: capability.KindResource, Payload: b.Text, MIMEType: b.MIMEType, IsError: b.IsError})
		default:
			failed := b.IsError || (isError && !perBlock)
			kind := capability.KindText
			if b.MIMEType == jsonMIMEType && !failed {
				kind = capability.KindJSON
			}
			contents = append(contents, capability.Content{Kind: kind, Payload: b.Text, MIMEType: b.MIMEType, IsError: failed})
		}
	}
	return contents
}
