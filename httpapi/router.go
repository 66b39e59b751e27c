// Package httpapi exposes a capability registry to automation callers over
// HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bpowers/go-modelcontext/capability"
)

// Registry is the part of the registry facade served over HTTP.
type Registry interface {
	DiscoverNow(ctx context.Context) ([]capability.Descriptor, error)
	ProvidersByType(capType string) []capability.Descriptor
	Providers() []capability.Descriptor
	Connect(d capability.Descriptor) bool
	Disconnect(d capability.Descriptor)
	IsConnected(capType string) bool
	Version(ctx context.Context, capType string) string
	Calculate(ctx context.Context, capType, value string) string
	ListTools(ctx context.Context, capType string) []capability.Tool
	CallTool(ctx context.Context, capType, name, jsonArgs string) []capability.Content
	ListResources(ctx context.Context, capType string) []capability.Resource
	ReadResource(ctx context.Context, capType, uri string) []capability.Content
	HasCapability(ctx context.Context, capType, name string) bool
}

// NewRouter returns an engine serving reg.
func NewRouter(reg Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	Attach(r, reg)
	return r
}

// Attach registers the routes on r.
func Attach(r *gin.Engine, reg Registry) {
	h := Handler{Reg: reg}

	r.GET("/providers", h.Providers)
	r.POST("/discover", h.Discover)
	r.POST("/connect", h.Connect)
	r.POST("/disconnect", h.Disconnect)

	types := r.Group("/types/:type")
	{
		types.GET("", h.Status)
		types.POST("/calculate", h.Calculate)
		types.GET("/tools", h.ListTools)
		types.POST("/tools/:name", h.CallTool)
		types.GET("/resources", h.ListResources)
		types.GET("/resource", h.ReadResource)
		types.GET("/capabilities/:name", h.HasCapability)
	}
}

type Handler struct {
	Reg Registry
}

func (h Handler) Providers(c *gin.Context) {
	capType := c.Query("type")
	if capType == "" {
		c.JSON(http.StatusOK, h.Reg.Providers())
		return
	}
	c.JSON(http.StatusOK, h.Reg.ProvidersByType(capType))
}

func (h Handler) Discover(c *gin.Context) {
	found, err := h.Reg.DiscoverNow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, found)
}

type reqDescriptor struct {
	ProcessID      string `json:"processId"      binding:"required"`
	EntryID        string `json:"entryId"        binding:"required"`
	CapabilityType string `json:"capabilityType"`
}

func (r reqDescriptor) descriptor() capability.Descriptor {
	capType := r.CapabilityType
	if capType == "" {
		capType = capability.UnknownType
	}
	return capability.Descriptor{ProcessID: r.ProcessID, EntryID: r.EntryID, CapabilityType: capType}
}

func (h Handler) Connect(c *gin.Context) {
	var req reqDescriptor
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"initiated": h.Reg.Connect(req.descriptor())})
}

func (h Handler) Disconnect(c *gin.Context) {
	var req reqDescriptor
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	h.Reg.Disconnect(req.descriptor())
	c.Status(http.StatusNoContent)
}

func (h Handler) Status(c *gin.Context) {
	capType := c.Param("type")
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"type":      capType,
		"connected": h.Reg.IsConnected(capType),
		"version":   h.Reg.Version(ctx, capType),
	})
}

type reqCalculate struct {
	Value string `json:"value" binding:"required"`
}

func (h Handler) Calculate(c *gin.Context) {
	var req reqCalculate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	result := h.Reg.Calculate(c.Request.Context(), c.Param("type"), req.Value)
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h Handler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, h.Reg.ListTools(c.Request.Context(), c.Param("type")))
}

// CallTool passes the request body through as the tool's JSON arguments.
func (h Handler) CallTool(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	args := strings.TrimSpace(string(body))
	if args == "" {
		args = "{}"
	}
	contents := h.Reg.CallTool(c.Request.Context(), c.Param("type"), c.Param("name"), args)
	c.JSON(http.StatusOK, contentResponse(contents))
}

func (h Handler) ListResources(c *gin.Context) {
	c.JSON(http.StatusOK, h.Reg.ListResources(c.Request.Context(), c.Param("type")))
}

func (h Handler) ReadResource(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		c.JSON(http.StatusBadRequest, gin.H{"err": "missing uri"})
		return
	}
	contents := h.Reg.ReadResource(c.Request.Context(), c.Param("type"), uri)
	c.JSON(http.StatusOK, contentResponse(contents))
}

func (h Handler) HasCapability(c *gin.Context) {
	supported := h.Reg.HasCapability(c.Request.Context(), c.Param("type"), c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"supported": supported})
}

// contentResponse wraps contents with a top-level error flag so callers need
// not scan the items.
func contentResponse(contents []capability.Content) gin.H {
	_, isError := capability.Errors(contents)
	return gin.H{"content": contents, "isError": isError}
}
