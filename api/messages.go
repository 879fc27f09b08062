package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// publishRequest keeps the loosely-typed fields raw so validation can
// report a precise error code for each.
type publishRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	QoS     json.RawMessage `json:"qos"`
	Retain  json.RawMessage `json:"retain"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.metrics.Request("messages")

	if !s.requireBroker(w) {
		s.metrics.PublishResult("rejected")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Request body must be JSON")

		return
	}

	if req.Topic == "" {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeMissingTopic, "Topic is required")

		return
	}

	if strings.TrimSpace(req.Topic) == "" {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeInvalidTopic, "Topic must be a non-empty string")

		return
	}

	if strings.ContainsAny(req.Topic, "+#") {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeInvalidTopicWildcards,
			"Topic cannot contain wildcard characters (+ or #) when publishing")

		return
	}

	payload := decodePayloadField(req.Payload)

	qos, ok := decodeQoS(req.QoS)
	if !ok {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeInvalidQoS, "QoS must be 0, 1, or 2")

		return
	}

	retain, ok := decodeRetain(req.Retain)
	if !ok {
		s.metrics.PublishResult("rejected")
		writeError(w, http.StatusBadRequest, CodeInvalidRetain, "Retain must be a boolean value")

		return
	}

	if err := s.client.Publish(r.Context(), req.Topic, payload, qos, retain); err != nil {
		s.metrics.PublishResult("failed")
		writeError(w, http.StatusInternalServerError, CodePublishFailed, "Failed to publish message: "+err.Error())

		return
	}

	s.metrics.PublishResult("ok")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message published successfully",
		"details": map[string]any{
			"topic":   req.Topic,
			"payload": payload,
			"qos":     qos,
			"retain":  retain,
		},
	})
}

// decodePayloadField accepts a JSON string payload, and renders any
// other JSON value as its source text.
func decodePayloadField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}

func decodeQoS(raw json.RawMessage) (byte, bool) {
	if len(raw) == 0 {
		return 0, true
	}

	var qos int
	if err := json.Unmarshal(raw, &qos); err != nil {
		return 0, false
	}

	if qos < 0 || qos > 2 {
		return 0, false
	}

	return byte(qos), true
}

func decodeRetain(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, true
	}

	var retain bool
	if err := json.Unmarshal(raw, &retain); err != nil {
		return false, false
	}

	return retain, true
}
