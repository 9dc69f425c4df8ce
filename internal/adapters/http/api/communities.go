// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/adkite/tempograph/internal/domain/graph"
)

// CommunityDependencies defines the interface for community reads.
type CommunityDependencies interface {
	Communities() []graph.Community
}

// CommunitiesHandler handles community listing requests.
type CommunitiesHandler struct {
	deps CommunityDependencies
}

// NewCommunitiesHandler creates a new communities handler.
func NewCommunitiesHandler(deps CommunityDependencies) *CommunitiesHandler {
	return &CommunitiesHandler{deps: deps}
}

// HandleGetCommunities handles GET /communities requests, returning the
// most recent detection result.
func (h *CommunitiesHandler) HandleGetCommunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	communities := h.deps.Communities()
	if communities == nil {
		communities = []graph.Community{}
	}
	writeJSON(w, http.StatusOK, communities)
}
