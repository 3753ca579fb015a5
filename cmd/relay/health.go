package main

import (
	"encoding/json"
	"net/http"

	"github.com/electr1fy0/relay/internal/cluster"
	"github.com/electr1fy0/relay/internal/registry"
	"github.com/electr1fy0/relay/internal/transport"
)

type healthResponse struct {
	Status      string `json:"status"`
	NodeID      string `json:"node_id,omitempty"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
	Cluster     bool   `json:"cluster"`
}

func healthHandler(ws *transport.Server, reg *registry.Registry, node *cluster.Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:      "ok",
			Connections: reg.Len(),
			Sessions:    ws.Active(),
			Cluster:     node != nil,
		}
		if node != nil {
			resp.NodeID = node.ID()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
