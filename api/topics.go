package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hollyvale/mqttdash/mqtt"
	"github.com/hollyvale/mqttdash/stats"
)

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Request("topics")

	if !s.requireTracker(w) {
		return
	}

	q := r.URL.Query()

	includeInactive := strings.EqualFold(q.Get("include_inactive"), "true")

	topics := s.tracker.Topics(includeInactive)
	total := len(topics)

	if prefix := q.Get("prefix"); prefix != "" {
		topics = filterTopics(topics, func(t stats.TopicInfo) bool {
			return strings.HasPrefix(t.Topic, prefix)
		})
	}

	if filter := q.Get("filter"); filter != "" {
		topics = filterTopics(topics, func(t stats.TopicInfo) bool {
			return mqtt.Match(filter, t.Topic)
		})
	}

	filtered := len(topics)

	topics = limitTopics(topics, q.Get("limit"), 0)

	docs := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		docs = append(docs, t.Document())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topics":   docs,
		"total":    total,
		"filtered": filtered,
	})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	s.metrics.Request("topics")

	if !s.requireTracker(w) {
		return
	}

	name := chi.URLParam(r, "*")

	info, ok := s.tracker.Topic(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeTopicNotFound, "Topic '"+name+"' not found")
		return
	}

	writeJSON(w, http.StatusOK, info.Document())
}

func (s *Server) handleTopicsCount(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("topics")

	if !s.requireTracker(w) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": s.tracker.Count(),
	})
}

func (s *Server) handleTopicsSummary(w http.ResponseWriter, r *http.Request) {
	s.metrics.Request("topics")

	if !s.requireTracker(w) {
		return
	}

	q := r.URL.Query()

	topics := s.tracker.Topics(false)

	if prefix := q.Get("prefix"); prefix != "" {
		topics = filterTopics(topics, func(t stats.TopicInfo) bool {
			return strings.HasPrefix(t.Topic, prefix)
		})
	}

	total := len(topics)

	topics = limitTopics(topics, q.Get("limit"), 100)

	docs := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		docs = append(docs, t.Summary())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topics": docs,
		"total":  total,
	})
}

func filterTopics(topics []stats.TopicInfo, keep func(stats.TopicInfo) bool) []stats.TopicInfo {
	out := topics[:0:0]
	for _, t := range topics {
		if keep(t) {
			out = append(out, t)
		}
	}

	return out
}

// limitTopics truncates topics to the limit query value, falling back to
// def when the parameter is absent or invalid. A def of zero means no
// limit.
func limitTopics(topics []stats.TopicInfo, raw string, def int) []stats.TopicInfo {
	limit := def
	if n, err := strconv.Atoi(raw); err == nil {
		limit = n
	}

	if limit > 0 && len(topics) > limit {
		return topics[:limit]
	}

	return topics
}
