package api

import (
	"net/http"

	"github.com/ayusman/nayana/internal/plugin"
)

// PluginRegistry lists the discovered plugins.
type PluginRegistry interface {
	List() []*plugin.Plugin
	Discover() error
}

// PluginHandler serves the discovered plugins and their actions.
type PluginHandler struct {
	registry PluginRegistry
}

// NewPluginHandler creates a new PluginHandler.
func NewPluginHandler(registry PluginRegistry) *PluginHandler {
	return &PluginHandler{registry: registry}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

// ServeHTTP handles GET /api/plugins and POST /api/plugins/rescan.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/plugins")

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.list(w)
	case len(parts) == 1 && parts[0] == "rescan" && r.Method == http.MethodPost:
		if err := h.registry.Discover(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to discover plugins")
			return
		}
		h.list(w)
	case len(parts) == 0, len(parts) == 1 && parts[0] == "rescan":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *PluginHandler) list(w http.ResponseWriter) {
	plugins := h.registry.List()
	response := listPluginsResponse{
		Plugins: make([]pluginResponse, 0, len(plugins)),
	}
	for _, p := range plugins {
		actions := p.Manifest.Actions
		if actions == nil {
			actions = []string{}
		}
		response.Plugins = append(response.Plugins, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     actions,
		})
	}
	writeJSON(w, http.StatusOK, response)
}
