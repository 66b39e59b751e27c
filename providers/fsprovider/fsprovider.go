// Package fsprovider exposes a read-only fs.FS as a capability provider of
// type "file".
package fsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/providers"
	"github.com/bpowers/go-modelcontext/schema"
)

const (
	ServiceType = "file"
	Version     = "FileReader Service v1.0"

	// URIPrefix precedes the slash-rooted file name in resource URIs.
	URIPrefix = "file://"
)

// Provider serves files from an fs.FS.
type Provider struct {
	providers.Base
	fsys fs.FS
}

var _ capability.Provider = (*Provider)(nil)

// New returns a provider over fsys.
func New(fsys fs.FS) *Provider {
	p := &Provider{Base: providers.NewBase(ServiceType, Version), fsys: fsys}

	p.MustRegister(capability.Tool{
		Name:        "read_file",
		Description: "Reads the contents of a file",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"fileName": schema.Prop(schema.String, "Path of the file to read"),
		}, "fileName").String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		name := args.String("fileName")
		if args.Err() != nil {
			return nil
		}
		content, err := ReadFile(p.fsys, ReadFileRequest{FileName: name})
		if err != nil {
			return []capability.Content{capability.ErrorContent("%v", err)}
		}
		return []capability.Content{capability.TextContent(content.Content)}
	})

	p.MustRegister(capability.Tool{
		Name:        "read_dir",
		Description: "Lists the entries of a directory",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"path": schema.Prop(schema.String, "Directory path to read (defaults to the root)"),
		}).String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		result, err := ReadDir(p.fsys, ReadDirRequest{Path: args.OptString("path", ".")})
		if err != nil {
			return []capability.Content{capability.ErrorContent("%v", err)}
		}
		data, err := json.Marshal(result)
		if err != nil {
			return []capability.Content{capability.ErrorContent("encode listing: %v", err)}
		}
		return []capability.Content{capability.JSONContent(string(data))}
	})

	return p
}

// Calculate reads the named file.
func (p *Provider) Calculate(_ context.Context, value string) (string, error) {
	content, err := ReadFile(p.fsys, ReadFileRequest{FileName: value})
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return content.Content, nil
}

// ListResources lists one resource per regular file at the root.
func (p *Provider) ListResources(context.Context) ([]capability.Resource, error) {
	listing, err := ReadDir(p.fsys, ReadDirRequest{Path: "."})
	if err != nil {
		return nil, err
	}
	resources := make([]capability.Resource, 0, len(listing.Files))
	for _, f := range listing.Files {
		if f.IsDir {
			continue
		}
		resources = append(resources, capability.Resource{
			URI:         URIPrefix + "/" + f.Name,
			Name:        f.Name,
			Description: fmt.Sprintf("%d bytes", f.Size),
			MIMEType:    mimeType(f.Name),
		})
	}
	return resources, nil
}

// ReadResource reads a file:/// URI.
func (p *Provider) ReadResource(_ context.Context, uri string) ([]capability.Content, error) {
	name, ok := strings.CutPrefix(uri, URIPrefix)
	if !ok {
		return []capability.Content{capability.ErrorContent("Unknown resource: %s", uri)}, nil
	}
	content, err := ReadFile(p.fsys, ReadFileRequest{FileName: name})
	if err != nil {
		return []capability.Content{capability.ErrorContent("%v", err)}, nil
	}
	return []capability.Content{{
		Kind:     capability.KindText,
		Payload:  content.Content,
		MIMEType: mimeType(name),
	}}, nil
}

// HasCapability reports tools always and resources when the root has files.
func (p *Provider) HasCapability(ctx context.Context, name string) (bool, error) {
	if name != capability.CapabilityResources {
		return p.Base.HasCapability(ctx, name)
	}
	resources, err := p.ListResources(ctx)
	if err != nil {
		return false, nil
	}
	return len(resources) > 0, nil
}

func mimeType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "text/plain"
}

// ReadDirRequest is the input for ReadDir
type ReadDirRequest struct {
	Path string `json:"path,omitzero"` // Directory path to read (defaults to "." for root)
}

// ReadDirResult is the output of ReadDir
type ReadDirResult struct {
	Files []FileInfo `json:"files"`
}

// FileInfo contains information about a file
type FileInfo struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ReadDir lists a directory of fsys.
func ReadDir(fsys fs.FS, req ReadDirRequest) (ReadDirResult, error) {
	dirPath := cleanPath(req.Path)

	entries, err := fs.ReadDir(fsys, dirPath)
	if err != nil {
		return ReadDirResult{}, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:  entry.Name(),
			IsDir: entry.IsDir(),
			Size:  info.Size(),
		})
	}

	return ReadDirResult{Files: files}, nil
}

// ReadFileRequest is the input for ReadFile
type ReadFileRequest struct {
	FileName string `json:"fileName"`
}

// ReadFileResult is the output of ReadFile
type ReadFileResult struct {
	Content string `json:"content"`
}

// ReadFile reads a file of fsys.
func ReadFile(fsys fs.FS, req ReadFileRequest) (ReadFileResult, error) {
	// traversal is bounded by fs.FS itself; cleaning keeps names valid for Open.
	fileName := cleanPath(req.FileName)

	file, err := fsys.Open(fileName)
	if err != nil {
		return ReadFileResult{}, fmt.Errorf("failed to open file %s: %w", fileName, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return ReadFileResult{}, fmt.Errorf("failed to read file %s: %w", fileName, err)
	}

	return ReadFileResult{Content: string(content)}, nil
}

func cleanPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "."
	}
	return p
}
