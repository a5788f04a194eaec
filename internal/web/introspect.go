// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// pluginsIndex is the /_plugins response payload.
type pluginsIndex struct {
	Count   int           `json:"count"`
	Plugins []pluginEntry `json:"plugins"`
}

// pluginEntry describes one loaded plugin for introspection.
type pluginEntry struct {
	Name     string   `json:"name"`
	Route    string   `json:"route"`
	Metadata []string `json:"metadata"`
}

// handlePluginsIndex reports the plugins currently publishing routes. The
// display labels carry the "Plugin:" prefix so OpenAPI tooling can filter
// plugin routes from host routes.
func (s *Server) handlePluginsIndex(c *gin.Context) {
	names := s.cfg.Registry.PluginNames()

	index := pluginsIndex{
		Count:   len(names),
		Plugins: make([]pluginEntry, 0, len(names)),
	}
	for _, name := range names {
		entries := s.cfg.Registry.EntriesFor(name)
		metadata := make([]string, 0, len(entries))
		for _, e := range entries {
			metadata = append(metadata, e.Method+" "+e.DisplayLabel)
		}
		index.Plugins = append(index.Plugins, pluginEntry{
			Name:     name,
			Route:    "/" + name,
			Metadata: metadata,
		})
	}

	c.JSON(http.StatusOK, index)
}
