package api

import (
	"encoding/json"
	"net/http"

	"github.com/hollyvale/mqttdash/log"
)

// Error codes returned in the error envelope.
const (
	CodeBrokerDisconnected        = "BROKER_DISCONNECTED"
	CodeSysNotSubscribed          = "SYS_NOT_SUBSCRIBED"
	CodeTopicTrackerNotSubscribed = "TOPIC_TRACKER_NOT_SUBSCRIBED"
	CodeInvalidRequest            = "INVALID_REQUEST"
	CodeMissingTopic              = "MISSING_TOPIC"
	CodeInvalidTopic              = "INVALID_TOPIC"
	CodeInvalidTopicWildcards     = "INVALID_TOPIC_WILDCARDS"
	CodeInvalidQoS                = "INVALID_QOS"
	CodeInvalidRetain             = "INVALID_RETAIN"
	CodePublishFailed             = "PUBLISH_FAILED"
	CodeTopicNotFound             = "TOPIC_NOT_FOUND"
)

// errorBody is the envelope for every error response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WarnError("Unable to encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
