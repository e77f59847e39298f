package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DragonSecurity/podrelay/internal/pods"
	"github.com/DragonSecurity/podrelay/internal/relay"
	"github.com/DragonSecurity/podrelay/pkg/proto"
)

const availableRoutes = "Available endpoints: POST /api/rpc, GET /health, GET /api/endpoints, GET /api/stats, GET /api/ws, GET /metrics"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDoc(w http.ResponseWriter, status int, doc []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(doc)
}

func httpStatus(st relay.Status) int {
	switch st {
	case relay.StatusDelivered:
		return http.StatusOK
	case relay.StatusExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions && s.cfg.CORS {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeDoc(w, http.StatusMethodNotAllowed, proto.ErrorResponse(nil, proto.CodeInvalidRequest, "Invalid Request", nil))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		writeDoc(w, status, proto.ErrorResponse(proto.PeekID(body), proto.CodeInvalidRequest, "Invalid Request", nil))
		return
	}
	req, err := proto.Decode(body)
	if err != nil {
		writeDoc(w, http.StatusBadRequest, proto.ErrorResponse(proto.PeekID(body), proto.CodeInvalidRequest, "Invalid Request", nil))
		return
	}

	res := s.relay.Do(r.Context(), req)
	if res.Status == relay.StatusDelivered {
		w.Header().Set("X-Relay-Endpoint", res.Endpoint)
		w.Header().Set("X-Relay-Method", res.Method)
	}
	writeDoc(w, httpStatus(res.Status), res.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"endpoints": len(s.relay.Candidates()),
	})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	c := s.relay.Candidates()
	writeJSON(w, http.StatusOK, map[string]any{
		"primary":   c[0],
		"fallbacks": c[1:],
		"total":     len(c),
	})
}

type statsResponse struct {
	pods.NetworkStats
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

// handleStats relays the pod listing and summarizes it. Relay failures pass through as the
// relay's own document.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	req := &proto.Request{JSONRPC: proto.Version, Method: s.statsMethod, ID: json.RawMessage("1")}
	res := s.relay.Do(r.Context(), req)
	if res.Status != relay.StatusDelivered {
		writeDoc(w, httpStatus(res.Status), res.Body)
		return
	}
	list, err := pods.DecodeResult(res.Body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Bad Gateway", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		NetworkStats: pods.Summarize(list, s.now()),
		Endpoint:     res.Endpoint,
		Method:       res.Method,
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found", "message": availableRoutes})
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed", "message": availableRoutes})
}
