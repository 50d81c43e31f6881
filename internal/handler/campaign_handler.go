// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/flowsend/campaign-worker/internal/errors"
	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service *service.CampaignService
}

// CreateCampaign handles POST /campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkspaceID   string  `json:"workspace_id"`
		FlowID        string  `json:"flow_id"`
		Title         string  `json:"title"`
		FileURL       string  `json:"file_url"`
		ExecutionMode string  `json:"execution_mode"`
		ExecuteAt     *string `json:"execute_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var executeAt *time.Time
	if body.ExecuteAt != nil {
		t, err := time.Parse(time.RFC3339, *body.ExecuteAt)
		if err != nil {
			http.Error(w, "invalid execute_at: "+err.Error(), http.StatusBadRequest)
			return
		}
		executeAt = &t
	}

	campaign, err := h.Service.CreateCampaign(
		body.WorkspaceID, body.FlowID, body.Title, body.FileURL,
		model.ExecutionMode(body.ExecutionMode), executeAt,
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

// ListCampaigns handles GET /campaigns?workspace_id=...&page=...&page_size=...
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		http.Error(w, "workspace_id is required", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	campaigns, pagination, err := h.Service.ListCampaigns(workspaceID, page, pageSize)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaign handles GET /campaigns/{id} and includes recipient stats
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetails(id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}
