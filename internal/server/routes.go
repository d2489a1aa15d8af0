/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/integrity"
	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/scheduler"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
	"github.com/friendsincode/grimnir_playout/internal/version"
)

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/playouts", s.handlePlayoutsList)
		r.Get("/playouts/{playoutID}", s.handlePlayoutStatus)
		r.Post("/playouts/{playoutID}/build", s.handlePlayoutBuild)
		r.Get("/playouts/{playoutID}/guide.ics", s.handlePlayoutGuide)
		r.Post("/collections/{kind}/{collectionID}/updated", s.handleCollectionUpdated)
		r.Post("/schedules/{scheduleID}/updated", s.handleScheduleUpdated)
		r.Post("/webhooks/{webhookID}/test", s.handleWebhookTest)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stats", s.handleLogStats)
		r.Get("/integrity", s.handleIntegrityScan)
		r.Post("/integrity/repair", s.handleIntegrityRepair)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func intParam(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	return id, err == nil && id > 0
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "ok",
		"instance_id": s.instanceID,
		"version":     version.Version,
	}
	if s.leaderAwareScheduler != nil {
		resp["leader"] = s.leaderAwareScheduler.IsLeader()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReady fails when the database is unreachable or this instance
// should be scheduling but has not ticked recently.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("readiness: database unreachable")
		writeError(w, http.StatusServiceUnavailable, "database_unavailable")
		return
	}

	if s.runsScheduler() {
		last := s.scheduler.Status().LastTick()
		if last.IsZero() || time.Since(last) > 3*s.cfg.SchedulerInterval {
			writeError(w, http.StatusServiceUnavailable, "scheduler_stalled")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handlePlayoutsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"last_tick": s.scheduler.Status().LastTick(),
		"playouts":  s.scheduler.Status().Snapshot(),
	})
}

func (s *Server) handlePlayoutStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "playoutID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_playout_id")
		return
	}
	status, ok := s.scheduler.Status().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no_build_status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePlayoutBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "playoutID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_playout_id")
		return
	}
	mode, err := playout.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}

	result, err := s.scheduler.BuildPlayout(r.Context(), id, mode)
	switch {
	case errors.Is(err, playout.ErrPlayoutNotFound):
		writeError(w, http.StatusNotFound, "playout_not_found")
		return
	case errors.Is(err, scheduler.ErrBusy):
		writeError(w, http.StatusConflict, "build_in_progress")
		return
	case errors.Is(err, playout.ErrEmptyCollection):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "empty_collection", "detail": err.Error()})
		return
	case err != nil:
		s.logger.Error().Err(err).Int("playout_id", id).Msg("manual build failed")
		writeError(w, http.StatusInternalServerError, "build_failed")
		return
	}

	warnings := make([]string, 0, len(result.Warnings))
	for _, warn := range result.Warnings {
		warnings = append(warnings, string(warn.Kind))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      result.RunID.String(),
		"playout_id":  result.PlayoutID,
		"mode":        result.Mode,
		"outcome":     result.Outcome,
		"start":       result.Start,
		"finish":      result.Finish,
		"items_added": result.ItemsAdded,
		"warnings":    warnings,
	})
}

func (s *Server) handlePlayoutGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "playoutID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_playout_id")
		return
	}

	start := time.Now().UTC()
	end := start.AddDate(0, 0, s.cfg.DaysToBuild)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end")
			return
		}
		end = t
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	export, err := s.exporter.ExportToICal(r.Context(), id, start, end)
	if errors.Is(err, schedule.ErrPlayoutNotFound) {
		writeError(w, http.StatusNotFound, "playout_not_found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int("playout_id", id).Msg("guide export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (s *Server) handleCollectionUpdated(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "collectionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_collection_id")
		return
	}
	kind := models.CollectionKind(chi.URLParam(r, "kind"))
	switch kind {
	case models.CollectionKindCollection, models.CollectionKindMultiCollection,
		models.CollectionKindSmartCollection, models.CollectionKindPlaylist,
		models.CollectionKindShow, models.CollectionKindArtist, models.CollectionKindMediaItem:
	default:
		writeError(w, http.StatusBadRequest, "invalid_collection_kind")
		return
	}

	s.bus.Publish(events.EventCollectionUpdated, events.Payload{
		"collection_id":   id,
		"collection_kind": string(kind),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_queued"})
}

func (s *Server) handleScheduleUpdated(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "scheduleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_schedule_id")
		return
	}
	s.bus.Publish(events.EventScheduleUpdated, events.Payload{"schedule_id": id})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_queued"})
}

func (s *Server) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "webhookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_webhook_id")
		return
	}
	var target models.WebhookTarget
	if err := s.db.WithContext(r.Context()).Limit(1).Find(&target, id).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if target.ID == 0 {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	if err := s.webhooks.TestWebhook(r.Context(), target); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "delivery_failed", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "log_buffer_disabled")
		return
	}
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: q.Get("order") != "asc",
	}
	if v := q.Get("playout_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_playout_id")
			return
		}
		params.PlayoutID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.logs.Query(params)})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "log_buffer_disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.logs.Stats())
}

func (s *Server) handleIntegrityScan(w http.ResponseWriter, r *http.Request) {
	report, err := s.integrity.Scan(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("integrity scan failed")
		writeError(w, http.StatusInternalServerError, "scan_failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	var input integrity.RepairInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Type == "" || input.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.integrity.Repair(r.Context(), input)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "repair_failed", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
