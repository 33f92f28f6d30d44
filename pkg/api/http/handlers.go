package http

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aescanero/pagekit/internal/application/orchestrator"
	"github.com/aescanero/pagekit/pkg/storage"
	"github.com/gin-gonic/gin"
)

// DefaultEventLimit caps the history returned when no limit is given
const DefaultEventLimit = 50

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ItemResponse is a single storage entry
type ItemResponse struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// handleHealth reports 200 once the application is ready and 503 otherwise
func (s *Server) handleHealth(c *gin.Context) {
	state := orchestrator.StateIdle
	if s.orchestrator != nil {
		state = s.orchestrator.State()
	}

	checks := gin.H{"orchestrator": string(state)}
	healthy := state == orchestrator.StateReady

	if s.health != nil {
		pool := s.health.GetStatus()
		checks["workers"] = pool
		healthy = healthy && pool.Healthy
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleListModules lists every registered module in initialization order
func (s *Server) handleListModules(c *gin.Context) {
	if s.orchestrator == nil {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "orchestrator not configured")
		return
	}

	modules := s.orchestrator.Modules()
	c.JSON(http.StatusOK, gin.H{
		"state":   s.orchestrator.State(),
		"modules": modules,
		"total":   len(modules),
	})
}

// handleGetModule returns one module
func (s *Server) handleGetModule(c *gin.Context) {
	name := c.Param("name")
	if s.orchestrator != nil {
		for _, info := range s.orchestrator.Modules() {
			if info.Name == name {
				c.JSON(http.StatusOK, info)
				return
			}
		}
	}
	abortError(c, http.StatusNotFound, "NOT_FOUND", "module not found")
}

// handleListErrors returns the orchestrator's captured errors
func (s *Server) handleListErrors(c *gin.Context) {
	var errs []orchestrator.CapturedError
	if s.orchestrator != nil {
		errs = s.orchestrator.Errors()
	}
	c.JSON(http.StatusOK, gin.H{
		"errors": errs,
		"total":  len(errs),
	})
}

// handleListEvents returns recorded bus events filtered by ?pattern and ?limit
func (s *Server) handleListEvents(c *gin.Context) {
	if s.bus == nil {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "event bus not configured")
		return
	}

	limit := DefaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	pattern := c.Query("pattern")
	events := s.bus.History(pattern, limit)
	c.JSON(http.StatusOK, gin.H{
		"events":  events,
		"total":   len(events),
		"pattern": pattern,
		"limit":   limit,
	})
}

// handleClearEvents drops the bus history
func (s *Server) handleClearEvents(c *gin.Context) {
	if s.bus == nil {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "event bus not configured")
		return
	}
	s.bus.ClearHistory()
	c.Status(http.StatusNoContent)
}

// handleListListeners returns the handler count per pattern
func (s *Server) handleListListeners(c *gin.Context) {
	if s.bus == nil {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "event bus not configured")
		return
	}

	listeners := make(map[string]int)
	for _, pattern := range s.bus.Patterns() {
		listeners[pattern] = s.bus.ListenerCount(pattern)
	}
	c.JSON(http.StatusOK, gin.H{
		"listeners": listeners,
		"total":     s.bus.ListenerCount(""),
	})
}

// handleListNamespaces lists the storages the inspector can see
func (s *Server) handleListNamespaces(c *gin.Context) {
	type namespace struct {
		Namespace string `json:"namespace"`
		Backing   string `json:"backing"`
		Fallback  bool   `json:"fallback"`
	}

	out := make([]namespace, 0, len(s.storages))
	for name, st := range s.storages {
		out = append(out, namespace{Namespace: name, Backing: st.Backing(), Fallback: st.Fallback()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })

	c.JSON(http.StatusOK, gin.H{"namespaces": out})
}

func (s *Server) lookupStorage(c *gin.Context) (*storage.Storage, bool) {
	st, ok := s.storages[c.Param("namespace")]
	if !ok {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "storage namespace not found")
	}
	return st, ok
}

// handleListKeys lists the live keys of a namespace
func (s *Server) handleListKeys(c *gin.Context) {
	st, ok := s.lookupStorage(c)
	if !ok {
		return
	}

	keys := st.Keys(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"namespace": st.Namespace(),
		"keys":      keys,
		"total":     len(keys),
	})
}

// handleGetItem returns one live entry
func (s *Server) handleGetItem(c *gin.Context) {
	st, ok := s.lookupStorage(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	key := c.Param("key")
	if !st.Has(ctx, key) {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "key not found")
		return
	}

	resp := ItemResponse{
		Namespace: st.Namespace(),
		Key:       key,
		Value:     st.Get(ctx, key, nil),
	}
	if remaining, ok := st.TTL(ctx, key); ok {
		resp.ExpiresIn = remaining.String()
	}
	c.JSON(http.StatusOK, resp)
}

// handleCleanup drops the expired entries of a namespace
func (s *Server) handleCleanup(c *gin.Context) {
	st, ok := s.lookupStorage(c)
	if !ok {
		return
	}

	removed := st.CleanExpired(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"namespace": st.Namespace(),
		"removed":   removed,
	})
}
