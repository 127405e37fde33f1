// Package api exposes the Vault RPC surface described in SPEC_FULL §6 over
// HTTP/JSON using chi, the same router the teacher used for its own REST
// surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	vaulterrors "vaultmemory/internal/errors"
	"vaultmemory/internal/registry"
	"vaultmemory/internal/retrieval"
	"vaultmemory/internal/vault"
	"vaultmemory/pkg/types"
)

const (
	headerMemoryKey = "X-Memory-Key"
	headerSessionID = "X-Session-ID"
)

// replicaChecker is the health-check face of the Qdrant replica — satisfied
// by both storage.Replica and storage.CircuitBreakerReplica.
type replicaChecker interface {
	HealthCheck(ctx context.Context) error
}

// warmthChecker is the health-check face of the warmth registry —
// satisfied by warmth.Registry.
type warmthChecker interface {
	Ping(ctx context.Context) error
}

// Router is the Vault RPC surface: every request resolves a hierarchical
// vault name from X-Memory-Key/X-Session-ID, fetches the matching Vault
// from the registry, and calls straight through to it.
type Router struct {
	mux         *chi.Mux
	vaults      *registry.Registry
	coordinator *retrieval.Coordinator
	replica     replicaChecker // nil if no Qdrant replica is configured
	warmth      warmthChecker  // nil if no warmth registry is configured
}

// New builds the Router, wiring chi's standard middleware stack the way the
// teacher's own router did: panic recovery first, then a request timeout,
// a body-size cap, and a real /healthz that probes every configured
// dependency rather than a static heartbeat. replica and warmth may be nil
// when those dependencies are not configured, per SPEC_FULL §6.
func New(vaults *registry.Registry, coordinator *retrieval.Coordinator, replica replicaChecker, warmth warmthChecker) *Router {
	rt := &Router{mux: chi.NewRouter(), vaults: vaults, coordinator: coordinator, replica: replica, warmth: warmth}

	rt.mux.Use(chimiddleware.Recoverer)
	rt.mux.Use(chimiddleware.Timeout(30 * time.Second))
	rt.mux.Use(chimiddleware.RequestSize(10 * 1024 * 1024))
	rt.mux.Get("/healthz", rt.handleHealthz)

	rt.routes()
	return rt
}

// Handler returns the HTTP handler.
func (rt *Router) Handler() http.Handler { return rt.mux }

func (rt *Router) routes() {
	rt.mux.Post("/search", rt.handleSearch)
	rt.mux.Post("/search-all", rt.handleSearchAll)
	rt.mux.Post("/store", rt.handleStore)
	rt.mux.Post("/store-chunked", rt.handleStoreChunked)
	rt.mux.Post("/bulk-store", rt.handleBulkStore)
	rt.mux.Post("/delete", rt.handleDelete)
	rt.mux.Get("/buffer", rt.handleBufferGet)
	rt.mux.Post("/buffer", rt.handleBufferPost)
	rt.mux.Get("/stats", rt.handleStats)
	rt.mux.Post("/clear", rt.handleClear)
	rt.mux.Post("/reset", rt.handleReset)
	rt.mux.Get("/export", rt.handleExport)
	rt.mux.Get("/warmth", rt.handleWarmth)
	rt.mux.Post("/archival-stats", rt.handleArchivalStats)
}

// vaultName resolves the hierarchical vault name for a request from its
// X-Memory-Key / X-Session-ID headers, per SPEC_FULL §3 addressing.
func vaultName(req *http.Request) (string, *vaulterrors.StandardError) {
	memoryKey := req.Header.Get(headerMemoryKey)
	if memoryKey == "" {
		return "", vaulterrors.NewRequiredFieldError(headerMemoryKey)
	}
	if sessionID := req.Header.Get(headerSessionID); sessionID != "" {
		return registry.SessionName(memoryKey, sessionID), nil
	}
	return registry.CoreName(memoryKey), nil
}

func (rt *Router) resolveVault(w http.ResponseWriter, req *http.Request) *vault.Vault {
	name, verr := vaultName(req)
	if verr != nil {
		verr.WriteHTTPError(w)
		return nil
	}
	v, err := rt.vaults.Get(req.Context(), name)
	if err != nil {
		vaulterrors.NewInternalError("failed to open vault", err).WriteHTTPError(w)
		return nil
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(w http.ResponseWriter, req *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		vaulterrors.NewValidationError("body", "invalid JSON: "+err.Error(), nil).WriteHTTPError(w)
		return false
	}
	return true
}

type searchRequest struct {
	Query        []float32 `json:"query"`
	K            int       `json:"k"`
	MinTimestamp *float64  `json:"minTimestamp,omitempty"`
	MaxTimestamp *float64  `json:"maxTimestamp,omitempty"`
}

func (rt *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body searchRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if len(body.Query) == 0 {
		vaulterrors.NewRequiredFieldError("query").WriteHTTPError(w)
		return
	}
	k := body.K
	if k <= 0 {
		k = 10
	}
	resp, err := v.Search(req.Context(), body.Query, k, body.MinTimestamp, body.MaxTimestamp)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type windowSpec struct {
	Name         string   `json:"name"`
	K            int      `json:"k"`
	MinTimestamp float64  `json:"minTimestamp"`
	MaxTimestamp float64  `json:"maxTimestamp"`
}

type searchAllRequest struct {
	Query   []float32    `json:"query"`
	Windows []windowSpec `json:"windows"`
}

// handleSearchAll runs the KRONOS three-window planner across the vault
// named by the request headers (the core vault, or the session vault when
// X-Session-ID is set) with equal per-window allocation (the external contract
// does not expose fractional cross-vault allocation; the coordinator's
// allocation-by-vault generality is exercised internally).
func (rt *Router) handleSearchAll(w http.ResponseWriter, req *http.Request) {
	name, verr := vaultName(req)
	if verr != nil {
		verr.WriteHTTPError(w)
		return
	}
	var body searchAllRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if len(body.Query) == 0 {
		vaulterrors.NewRequiredFieldError("query").WriteHTTPError(w)
		return
	}
	k := 10
	for _, win := range body.Windows {
		if win.K > k {
			k = win.K
		}
	}
	result, err := rt.coordinator.Plan(req.Context(), body.Query, k, map[string]float64{name: 1.0})
	if err != nil {
		vaulterrors.NewInternalError("plan failed", err).WriteHTTPError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type storeRequest struct {
	Embedding []float32 `json:"embedding"`
	Content   string    `json:"content"`
	Role      types.Role `json:"role"`
	Model     string    `json:"model,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

func (rt *Router) handleStore(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body storeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.Content == "" {
		vaulterrors.ErrContentRequired.WriteHTTPError(w)
		return
	}
	if body.Role == "" {
		vaulterrors.ErrRoleRequired.WriteHTTPError(w)
		return
	}
	result, err := v.Store(req.Context(), body.Embedding, body.Content, body.Role, body.Model, body.RequestID)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type storeChunkedRequest struct {
	Content string     `json:"content"`
	Role    types.Role `json:"role"`
}

func (rt *Router) handleStoreChunked(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body storeChunkedRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.Content == "" {
		vaulterrors.ErrContentRequired.WriteHTTPError(w)
		return
	}
	if body.Role == "" {
		vaulterrors.ErrRoleRequired.WriteHTTPError(w)
		return
	}
	result, err := v.StoreChunked(req.Context(), body.Content, body.Role)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type bulkLineRequest struct {
	Content   string     `json:"content"`
	Role      types.Role `json:"role,omitempty"`
	Timestamp float64    `json:"timestamp,omitempty"`
}

// handleBulkStore reads a JSONL body (one {content, role?, timestamp?}
// object per line), per SPEC_FULL 4.D's bulk-store protocol.
func (rt *Router) handleBulkStore(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}

	var lines []vault.BulkLine
	decoder := json.NewDecoder(req.Body)
	for decoder.More() {
		var line bulkLineRequest
		if err := decoder.Decode(&line); err != nil {
			vaulterrors.NewValidationError("body", "invalid JSONL: "+err.Error(), nil).WriteHTTPError(w)
			return
		}
		role := line.Role
		if role == "" {
			role = types.RoleUser
		}
		lines = append(lines, vault.BulkLine{Content: line.Content, Role: role, Timestamp: line.Timestamp})
	}

	result, err := v.BulkStore(req.Context(), lines)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type deleteRequest struct {
	IDs       []uint64 `json:"ids,omitempty"`
	OlderThan *float64 `json:"olderThan,omitempty"`
}

func (rt *Router) handleDelete(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body deleteRequest
	if !decodeBody(w, req, &body) {
		return
	}
	result, err := v.Delete(req.Context(), body.IDs, body.OlderThan)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) handleBufferGet(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	content, tokens, err := v.Buffer(req.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content": content, "tokenCount": tokens, "lastUpdated": time.Now().UTC().Format(time.RFC3339),
	})
}

type bufferActionRequest struct {
	Action string `json:"action"`
}

func (rt *Router) handleBufferPost(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body bufferActionRequest
	if !decodeBody(w, req, &body) {
		return
	}
	switch body.Action {
	case "clear":
		if err := v.Clear(req.Context()); err != nil {
			writeVaultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
	case "flush":
		result, err := v.FlushBuffer(req.Context())
		if err != nil {
			writeVaultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		vaulterrors.NewValidationError("action", "must be \"clear\" or \"flush\"", body.Action).WriteHTTPError(w)
	}
}

func (rt *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	stats, err := v.Stats(req.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) handleClear(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	if err := v.Clear(req.Context()); err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (rt *Router) handleReset(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	if err := v.Reset(req.Context()); err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

// handleExport renders every Item plus its raw vector (base64 little-endian
// f32) and the current VaultState, per SPEC_FULL §3's export format.
func (rt *Router) handleExport(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	dump, err := v.Export(req.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dump)
}

func (rt *Router) handleWarmth(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	info, err := v.Warmth(req.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type archivalStatsRequest struct {
	ArchivalCutoff float64 `json:"archivalCutoff"`
}

func (rt *Router) handleArchivalStats(w http.ResponseWriter, req *http.Request) {
	v := rt.resolveVault(w, req)
	if v == nil {
		return
	}
	var body archivalStatsRequest
	if !decodeBody(w, req, &body) {
		return
	}
	stats, err := v.ArchivalStats(req.Context(), body.ArchivalCutoff)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// healthCheck is one dependency's probe result.
type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthStatus is the /healthz response body, per SPEC_FULL §6: SQLite is
// always checked; the replica and warmth registry are checked only when
// configured, since neither is a hard dependency of the Vault itself.
type healthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]healthCheck `json:"checks"`
}

// handleHealthz probes SQLite reachability and, for every dependency that
// is actually configured, the Qdrant replica and the Redis warmth
// registry. Any failing check drops the overall status to "unhealthy" and
// the response to 503, so a load balancer can route around a vault process
// that has lost its storage or replica connection.
func (rt *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]healthCheck{
		"sqlite": probe(func() error { return rt.vaults.HealthCheck(ctx) }),
	}
	if rt.replica != nil {
		checks["replica"] = probe(func() error { return rt.replica.HealthCheck(ctx) })
	}
	if rt.warmth != nil {
		checks["warmth"] = probe(func() error { return rt.warmth.Ping(ctx) })
	}

	status := http.StatusOK
	overall := "healthy"
	for _, c := range checks {
		if c.Status != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	writeJSON(w, status, healthStatus{Status: overall, Checks: checks})
}

func probe(fn func() error) healthCheck {
	if err := fn(); err != nil {
		return healthCheck{Status: "unhealthy", Message: err.Error()}
	}
	return healthCheck{Status: "healthy"}
}

// writeVaultError maps a Vault-layer error onto the shared StandardError
// envelope. Vault constructs *vaulterrors.StandardError directly wherever
// it has enough context to classify the failure; anything else is an
// unclassified internal error.
func writeVaultError(w http.ResponseWriter, err error) {
	if se, ok := err.(*vaulterrors.StandardError); ok {
		se.WriteHTTPError(w)
		return
	}
	vaulterrors.NewInternalError("operation failed", err).WriteHTTPError(w)
}

