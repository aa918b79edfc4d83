package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mqttvault/core/internal/retention"
)

// topicResponse is the JSON shape of one registered topic.
type topicResponse struct {
	Topic            string `json:"topic"`
	ParentTopic      string `json:"parent_topic,omitempty"`
	MaxValues        int    `json:"max_values"`
	QueryFrequencyMS int    `json:"query_frequency_ms"`
}

// valueResponse is the JSON shape of one retained value.
type valueResponse struct {
	Topic     string    `json:"topic"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// upsertTopicRequest is the body of POST /api/v1/topics.
type upsertTopicRequest struct {
	Topic            string `json:"topic"`
	ParentTopic      string `json:"parent_topic,omitempty"`
	MaxValues        int    `json:"max_values"`
	QueryFrequencyMS int    `json:"query_frequency_ms"`
}

// handleListTopics returns all registered topics.
//
// GET /api/v1/topics
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListTopics(r.Context())
	if err != nil {
		s.logger.Error("listing topics", "error", err)
		writeInternalError(w, "failed to list topics")
		return
	}

	resp := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		resp = append(resp, topicResponse{
			Topic:            t.Topic,
			ParentTopic:      t.ParentTopic,
			MaxValues:        t.MaxValues,
			QueryFrequencyMS: t.QueryFrequencyMS,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topics": resp,
		"count":  len(resp),
	})
}

// handleUpsertTopic registers or updates topic retention metadata.
//
// POST /api/v1/topics
func (s *Server) handleUpsertTopic(w http.ResponseWriter, r *http.Request) {
	var req upsertTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.store.UpsertTopic(r.Context(), retention.Topic{
		Topic:            req.Topic,
		ParentTopic:      req.ParentTopic,
		MaxValues:        req.MaxValues,
		QueryFrequencyMS: req.QueryFrequencyMS,
	})
	switch {
	case errors.Is(err, retention.ErrInvalidTopic):
		writeBadRequest(w, "topic is required")
		return
	case errors.Is(err, retention.ErrInvalidMaxValues):
		writeBadRequest(w, "max_values must be at least 1")
		return
	case err != nil:
		s.logger.Error("upserting topic", "topic", req.Topic, "error", err)
		writeInternalError(w, "failed to upsert topic")
		return
	}

	writeJSON(w, http.StatusOK, topicResponse{
		Topic:            req.Topic,
		ParentTopic:      req.ParentTopic,
		MaxValues:        req.MaxValues,
		QueryFrequencyMS: req.QueryFrequencyMS,
	})
}

// handleLastValue returns the most recent value for a topic.
//
// GET /api/v1/topics/value?topic=...
func (s *Server) handleLastValue(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic query parameter is required")
		return
	}

	value, err := s.store.LastValue(r.Context(), topic)
	if err != nil {
		s.logger.Error("reading last value", "topic", topic, "error", err)
		writeInternalError(w, "failed to read value")
		return
	}
	if value == nil {
		writeNotFound(w, "no value retained for topic")
		return
	}

	writeJSON(w, http.StatusOK, valueResponse{
		Topic:     topic,
		Value:     value.Payload,
		Timestamp: value.Timestamp,
	})
}

// handleLastValues returns the most recent values for a topic, newest first.
//
// GET /api/v1/topics/values?topic=...&limit=N
func (s *Server) handleLastValues(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic query parameter is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	values, err := s.store.LastValues(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("reading values", "topic", topic, "error", err)
		writeInternalError(w, "failed to read values")
		return
	}

	resp := make([]valueResponse, 0, len(values))
	for _, v := range values {
		resp = append(resp, valueResponse{
			Topic:     topic,
			Value:     v.Payload,
			Timestamp: v.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topic":  topic,
		"values": resp,
		"count":  len(resp),
	})
}
