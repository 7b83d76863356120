package server

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// rpcRequest is a JSON-RPC 2.0 request. Params may be a bare object or a
// single-element positional array; both decode to the same body type.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// decodeParams fills dst from raw, unwrapping a positional array first.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return json.Unmarshal([]byte("{}"), dst)
		}
		trimmed = arr[0]
	}
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	return json.Unmarshal(trimmed, dst)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "drawdown.evaluate":
		var body drawdownRequest
		if err = decodeParams(request.Params, &body); err == nil {
			result, err = s.evaluateDrawdown(&body)
		}
	case "allocation.optimize":
		var body allocateBody
		if err = decodeParams(request.Params, &body); err == nil {
			var job *Job
			if job, err = s.startAllocation(&body); err == nil {
				result = map[string]string{"job_id": job.ID, "status": "pending"}
			}
		}
	case "siting.search":
		var body siteBody
		if err = decodeParams(request.Params, &body); err == nil {
			var job *Job
			if job, err = s.startSiting(&body); err == nil {
				result = map[string]string{"job_id": job.ID, "status": "pending"}
			}
		}
	case "pumptest.fit":
		var body pumpTestBody
		if err = decodeParams(request.Params, &body); err == nil {
			var job *Job
			if job, err = s.startPumpTest(&body); err == nil {
				result = map[string]string{"job_id": job.ID, "status": "pending"}
			}
		}
	case "job.status":
		var body struct {
			JobID string `json:"job_id"`
		}
		if err = decodeParams(request.Params, &body); err == nil {
			result, err = s.jobStatus(body.JobID)
		}
	case "job.cancel":
		var body struct {
			JobID string `json:"job_id"`
		}
		if err = decodeParams(request.Params, &body); err == nil {
			if err = s.cancelJob(body.JobID); err == nil {
				result = map[string]string{"status": "cancellation requested"}
			}
		}
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}
	respondJSON(w, http.StatusOK, response)
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}
	respondJSON(w, http.StatusOK, response)
}
