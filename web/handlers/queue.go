package handlers

import (
	"net/http"

	"github.com/scrypster/loreline/internal/engine"
	"github.com/scrypster/loreline/pkg/types"
)

// QueueHandlers serves the analysis queue monitoring and control endpoints.
type QueueHandlers struct {
	queue    *engine.AnalysisQueue
	analyzer *engine.Analyzer
}

// NewQueueHandlers creates handlers over the analysis queue.
func NewQueueHandlers(queue *engine.AnalysisQueue, analyzer *engine.Analyzer) *QueueHandlers {
	return &QueueHandlers{queue: queue, analyzer: analyzer}
}

// QueueStatsResponse contains queue status counts.
type QueueStatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Paused     int `json:"paused"`
	Total      int `json:"total"`
}

// QueueResponse is the full response for GET /api/queue.
type QueueResponse struct {
	Stats         QueueStatsResponse `json:"stats"`
	AnalyzerState string             `json:"analyzer_state"`
	Tasks         []types.QueueTask  `json:"tasks"`
}

// GetQueue handles GET /api/queue: current tasks plus status counts.
func (h *QueueHandlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	tasks := h.queue.Tasks()

	stats := QueueStatsResponse{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case types.TaskPending:
			stats.Pending++
		case types.TaskProcessing:
			stats.Processing++
		case types.TaskPaused:
			stats.Paused++
		}
	}

	respondJSON(w, http.StatusOK, QueueResponse{
		Stats:         stats,
		AnalyzerState: string(h.analyzer.State()),
		Tasks:         tasks,
	})
}

// PauseTask handles POST /api/queue/{id}/pause.
func (h *QueueHandlers) PauseTask(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Pause(r.PathValue("id")); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to pause task", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ResumeTask handles POST /api/queue/{id}/resume.
func (h *QueueHandlers) ResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Resume(r.PathValue("id")); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to resume task", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RemoveTask handles DELETE /api/queue/{id}. A processing task is aborted
// first.
func (h *QueueHandlers) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(r.PathValue("id")); err != nil {
		respondError(w, http.StatusNotFound, "failed to remove task", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AbortSuite handles DELETE /api/queue/suite/{id}: drops every task for
// one suite.
func (h *QueueHandlers) AbortSuite(w http.ResponseWriter, r *http.Request) {
	removed := h.queue.AbortSuite(r.PathValue("id"))
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
