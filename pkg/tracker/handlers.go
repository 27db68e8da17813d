package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/internal/platform"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/session"
)

func (a *App) setupRoutes() {
	api := a.router.PathPrefix("/api/v1").Subrouter()

	// Inbound signals from observation clients.
	api.HandleFunc("/contexts/{contextId}/session/start", a.handleSessionStart).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/activity", a.handleActivity).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/focus", a.handleFocus).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/run", a.handleRun).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/submit", a.handleSubmit).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/verdict", a.handleVerdict).Methods("POST")
	api.HandleFunc("/contexts/{contextId}/session/end", a.handleSessionEnd).Methods("POST")

	// UI surface.
	api.HandleFunc("/contexts/{contextId}/snapshot", a.handleSnapshot).Methods("GET")
	api.HandleFunc("/settings", a.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", a.handleUpdateSettings).Methods("PATCH")
	api.HandleFunc("/connection/test", a.handleConnectionTest).Methods("POST")
	api.HandleFunc("/events/log", a.handleEventLog).Methods("GET")

	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

type sessionStartRequest struct {
	Platform     string `json:"platform,omitempty"`
	ProblemTitle string `json:"problemTitle"`
	ProblemURL   string `json:"problemUrl"`
}

type activityRequest struct {
	Keystrokes int `json:"keystrokes,omitempty"`
}

type focusRequest struct {
	Focused bool `json:"focused"`
}

type verdictRequest struct {
	Verdict   string `json:"verdict"`
	RuntimeMs *int   `json:"runtimeMs,omitempty"`
	MemoryKb  *int   `json:"memoryKb,omitempty"`
}

// sessionView is the wire form of a session snapshot.
type sessionView struct {
	ContextID       string           `json:"contextId"`
	URL             string           `json:"url"`
	Platform        string           `json:"platform"`
	ProblemTitle    string           `json:"problemTitle"`
	ProblemID       string           `json:"problemId,omitempty"`
	ExpectedMinutes *int             `json:"expectedMinutes,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ActiveMs        int64            `json:"activeMs"`
	WallTimeMs      int64            `json:"wallTimeMs"`
	Active          bool             `json:"active"`
	Focused         bool             `json:"focused"`
	Counters        session.Counters `json:"counters"`
	FinalVerdict    string           `json:"finalVerdict,omitempty"`
}

func toView(snap session.Snapshot) sessionView {
	return sessionView{
		ContextID:       snap.ContextID,
		URL:             snap.URL,
		Platform:        snap.Platform,
		ProblemTitle:    snap.ProblemTitle,
		ProblemID:       snap.ProblemID,
		ExpectedMinutes: snap.ExpectedMinutes,
		CreatedAt:       snap.CreatedAt,
		ActiveMs:        snap.ActiveTime.Milliseconds(),
		WallTimeMs:      snap.WallTime.Milliseconds(),
		Active:          snap.Active,
		Focused:         snap.Focused,
		Counters:        snap.Counters,
		FinalVerdict:    snap.FinalVerdict,
	}
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProblemURL == "" {
		writeError(w, http.StatusBadRequest, "problemUrl is required")
		return
	}

	plat := req.Platform
	if plat == "" {
		plat = string(platform.FromURL(req.ProblemURL))
	}

	created := a.Registry.EnsureSession(contextID, req.ProblemURL, plat, req.ProblemTitle)
	if created {
		a.dispatchAsync(event.New(event.KindSessionStarted, contextID, map[string]any{
			"platform":     plat,
			"problemTitle": req.ProblemTitle,
			"problemUrl":   req.ProblemURL,
		}))
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"created": created})
}

func (a *App) handleActivity(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	var req activityRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !a.Registry.RecordActivity(contextID, req.Keystrokes) {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *App) handleFocus(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !a.Registry.SetFocus(contextID, req.Focused) {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]
	if !a.Registry.RecordRun(contextID) {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *App) handleSubmit(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]
	if !a.Registry.RecordSubmission(contextID) {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *App) handleVerdict(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Verdict == "" {
		writeError(w, http.StatusBadRequest, "verdict is required")
		return
	}

	snap, ok := a.Registry.SetVerdict(contextID, req.Verdict)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}

	data := map[string]any{
		"problemId":    snap.ProblemID,
		"platform":     snap.Platform,
		"problemTitle": snap.ProblemTitle,
		"verdict":      req.Verdict,
		"activeMs":     snap.ActiveTime.Milliseconds(),
		"submissions":  snap.Counters.Submissions,
	}
	if req.RuntimeMs != nil {
		data["runtimeMs"] = *req.RuntimeMs
	}
	if req.MemoryKb != nil {
		data["memoryKb"] = *req.MemoryKb
	}
	a.dispatchAsync(event.New(event.KindSubmitted, contextID, data))

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *App) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	snap, ok := a.Registry.EndSession(contextID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}

	// Deletion already happened; a session that never resolved a problem
	// id ends without a terminal event.
	if snap.ProblemID != "" {
		a.dispatchAsync(event.New(event.KindSessionEnded, contextID, map[string]any{
			"problemId":    snap.ProblemID,
			"platform":     snap.Platform,
			"problemTitle": snap.ProblemTitle,
			"activeMs":     snap.ActiveTime.Milliseconds(),
			"wallTimeMs":   snap.WallTime.Milliseconds(),
			"keystrokes":   snap.Counters.Keystrokes,
			"runs":         snap.Counters.Runs,
			"submissions":  snap.Counters.Submissions,
			"finalVerdict": snap.FinalVerdict,
		}))
	}

	writeJSON(w, http.StatusAccepted, toView(snap))
}

func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["contextId"]

	snap, ok := a.Registry.Snapshot(contextID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown context")
		return
	}
	writeJSON(w, http.StatusOK, toView(snap))
}

type settingsView struct {
	CollectorURL        string `json:"collectorUrl"`
	HasCredential       bool   `json:"hasCredential"`
	UserID              string `json:"userId"`
	IdleThresholdMs     int64  `json:"idleThresholdMs"`
	HeartbeatIntervalMs int64  `json:"heartbeatIntervalMs"`
	DeliveryTimeoutMs   int64  `json:"deliveryTimeoutMs"`
}

type settingsUpdateRequest struct {
	CollectorURL        *string `json:"collectorUrl,omitempty"`
	Credential          *string `json:"credential,omitempty"`
	UserID              *string `json:"userId,omitempty"`
	IdleThresholdMs     *int64  `json:"idleThresholdMs,omitempty"`
	HeartbeatIntervalMs *int64  `json:"heartbeatIntervalMs,omitempty"`
	DeliveryTimeoutMs   *int64  `json:"deliveryTimeoutMs,omitempty"`
}

func toSettingsView(cfg config.Config) settingsView {
	return settingsView{
		CollectorURL:        cfg.Collector.URL,
		HasCredential:       cfg.Collector.Credential != "",
		UserID:              cfg.Tracking.UserID,
		IdleThresholdMs:     cfg.Tracking.IdleThreshold.Milliseconds(),
		HeartbeatIntervalMs: cfg.Tracking.HeartbeatInterval.Milliseconds(),
		DeliveryTimeoutMs:   cfg.Collector.DeliveryTimeout.Milliseconds(),
	}
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsView(a.Settings.Snapshot()))
}

func (a *App) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := config.SettingsUpdate{
		CollectorURL: req.CollectorURL,
		Credential:   req.Credential,
		UserID:       req.UserID,
	}
	if req.IdleThresholdMs != nil {
		d := time.Duration(*req.IdleThresholdMs) * time.Millisecond
		update.IdleThreshold = &d
	}
	if req.HeartbeatIntervalMs != nil {
		d := time.Duration(*req.HeartbeatIntervalMs) * time.Millisecond
		update.HeartbeatInterval = &d
	}
	if req.DeliveryTimeoutMs != nil {
		d := time.Duration(*req.DeliveryTimeoutMs) * time.Millisecond
		update.DeliveryTimeout = &d
	}

	next, err := a.Settings.Apply(update)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(next))
}

func (a *App) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	if err := a.Collector.Health(r.Context()); err != nil {
		a.Queue.MarkOnline(false)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	a.Queue.MarkOnline(true)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *App) handleEventLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, a.Dispatcher.Audit().Recent(limit))
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"sessions":     a.Registry.Len(),
		"pendingRetry": a.Queue.Len(),
	})
}

// dispatchAsync hands an event to the pipeline without making the signal
// handler wait for delivery. Failures are absorbed by the dispatcher and
// its retry queue.
func (a *App) dispatchAsync(ev event.Event) {
	go func() {
		if err := a.Dispatcher.Dispatch(context.Background(), ev); err != nil {
			a.log.V(1).Info("dispatch deferred or rejected",
				"eventId", ev.ID, "kind", ev.Kind, "error", err.Error())
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
