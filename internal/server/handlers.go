package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
	"github.com/0x-b4r47h/project-guardian/internal/websocket"
)

// maxBatchRecords bounds one batch request.
const maxBatchRecords = 1000

// AnalyzeRequest is one record submitted for analysis.
type AnalyzeRequest struct {
	RecordID string          `json:"record_id,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// AnalyzeResponse is the verdict for one record.
type AnalyzeResponse struct {
	RecordID     string         `json:"record_id,omitempty"`
	HasPII       bool           `json:"is_pii"`
	Redacted     pii.Record     `json:"redacted_data"`
	Categories   []pii.Category `json:"categories,omitempty"`
	Findings     []pii.Finding  `json:"findings,omitempty"`
	CacheHit     bool           `json:"cache_hit,omitempty"`
	ProcessingMS float64        `json:"processing_ms"`
}

// BatchAnalyzeRequest carries multiple records.
type BatchAnalyzeRequest struct {
	Records []AnalyzeRequest `json:"records"`
}

// BatchAnalyzeResponse summarizes a batch analysis.
type BatchAnalyzeResponse struct {
	Results []AnalyzeResponse `json:"results"`
	Total   int               `json:"total"`
	Flagged int               `json:"flagged"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleAnalyze analyzes a single record.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}
	if len(req.Data) == 0 {
		s.writeError(w, http.StatusBadRequest, "missing data field", requestID)
		return
	}

	resp, err := s.analyzeOne(r, requestID, req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleAnalyzeBatch analyzes multiple records in one request.
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())

	var req BatchAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}
	if len(req.Records) == 0 {
		s.writeError(w, http.StatusBadRequest, "no records provided", requestID)
		return
	}
	if len(req.Records) > maxBatchRecords {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many records, maximum is %d", maxBatchRecords), requestID)
		return
	}

	resp := BatchAnalyzeResponse{Results: make([]AnalyzeResponse, 0, len(req.Records))}
	for _, record := range req.Records {
		result, err := s.analyzeOne(r, requestID, record)
		if err != nil {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("record %q: %s", record.RecordID, err), requestID)
			return
		}
		resp.Results = append(resp.Results, result)
		resp.Total++
		if result.HasPII {
			resp.Flagged++
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// analyzeOne resolves one record through the cache or the analyzer and
// feeds the audit log and the event hub.
func (s *Server) analyzeOne(r *http.Request, requestID string, req AnalyzeRequest) (AnalyzeResponse, error) {
	start := time.Now()
	atomic.AddInt64(&s.totalRequests, 1)

	var rec pii.Record
	if err := json.Unmarshal(req.Data, &rec); err != nil {
		return AnalyzeResponse{}, fmt.Errorf("data is not a JSON object: %w", err)
	}

	var verdict pii.Verdict
	cacheHit := false
	if s.verdictCache != nil {
		if lookup, err := s.verdictCache.Lookup(r.Context(), rec); err == nil && lookup.CacheHit {
			verdict = *lookup.Verdict
			cacheHit = true
		}
	}
	if !cacheHit {
		verdict = s.analyzer.Analyze(rec)
		if s.verdictCache != nil {
			if err := s.verdictCache.Store(r.Context(), rec, verdict); err != nil {
				s.logger.Warn("Failed to cache verdict", zap.Error(err))
			}
		}
		if s.auditStore != nil {
			if err := s.auditStore.Insert(r.Context(), req.RecordID, rec, verdict); err != nil {
				s.logger.Warn("Failed to audit verdict", zap.Error(err))
			}
		}
	}

	if verdict.HasPII {
		atomic.AddInt64(&s.totalFlagged, 1)
	}

	processingMS := float64(time.Since(start).Nanoseconds()) / 1e6
	s.broadcastVerdict(requestID, req.RecordID, clientIP(r), verdict, rec.Len(), processingMS)

	return AnalyzeResponse{
		RecordID:     req.RecordID,
		HasPII:       verdict.HasPII,
		Redacted:     verdict.Redacted,
		Categories:   verdict.Categories,
		Findings:     verdict.Findings,
		CacheHit:     cacheHit,
		ProcessingMS: processingMS,
	}, nil
}

// broadcastVerdict publishes the verdict to dashboard clients.
func (s *Server) broadcastVerdict(requestID, recordID, ip string, verdict pii.Verdict, fieldCount int, processingMS float64) {
	event := websocket.VerdictEvent{
		RequestID:    requestID,
		RecordID:     recordID,
		ClientIP:     ip,
		HasPII:       verdict.HasPII,
		Categories:   verdict.Categories,
		Findings:     verdict.Findings,
		FieldCount:   fieldCount,
		ProcessingMS: processingMS,
	}
	if s.config.WebSocket.IncludeRedactedPII {
		redacted := verdict.Redacted
		event.Redacted = &redacted
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeVerdict,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data:      event,
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"project-guardian",
		"version":"1.0.0",
		"detection_enabled":%t,
		"detectors_count":%d,
		"cache_enabled":%t,
		"audit_enabled":%t
	}`, s.config.Detection.Enabled,
		len(s.analyzer.Classifier().EnabledCategories()),
		s.verdictCache != nil,
		s.auditStore != nil)
}

// handleStats reports runtime counters plus cache and audit statistics
// when those backends are configured.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := map[string]interface{}{
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"total_requests": atomic.LoadInt64(&s.totalRequests),
		"total_flagged":  atomic.LoadInt64(&s.totalFlagged),
		"memory_mb":      mem.Alloc / 1024 / 1024,
		"goroutines":     runtime.NumGoroutine(),
		"websocket":      s.wsHub.GetStats(),
	}

	if s.verdictCache != nil {
		if cacheStats, err := s.verdictCache.GetStats(r.Context()); err == nil {
			stats["cache"] = cacheStats
		}
	}
	if s.auditStore != nil {
		if auditStats, err := s.auditStore.GetStats(r.Context()); err == nil {
			stats["audit"] = auditStats
		}
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, requestID string) {
	s.writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID})
}
