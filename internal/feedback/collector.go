// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/metrics"
)

// Log is the append-only persistence behind the collector.
type Log interface {
	AppendFeedback(ctx context.Context, fb *Feedback) error
}

// Submission is the external payload accepted by Submit.
type Submission struct {
	RecommendationID string `json:"recommendation_id" validate:"required,uuid4"`
	RequesterID      string `json:"requester_id" validate:"required"`
	Action           string `json:"action" validate:"required,oneof=accept reject ignore"`
	Rating           int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment          string `json:"comment" validate:"max=2000"`
}

// Collector validates submissions and appends them to the log.
type Collector struct {
	log      Log
	logger   zerolog.Logger
	validate *validator.Validate
	nowFn    func() time.Time
}

// NewCollector creates a feedback collector backed by log.
func NewCollector(log Log, logger zerolog.Logger) *Collector {
	return &Collector{
		log:      log,
		logger:   logger.With().Str("component", "feedback").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		nowFn:    time.Now,
	}
}

// Submit validates and records one piece of feedback. Repeat submissions
// for the same recommendation by the same requester are appended as-is;
// the most recent one wins during aggregation.
func (c *Collector) Submit(ctx context.Context, sub Submission) (*Feedback, error) {
	if err := c.validate.Struct(sub); err != nil {
		metrics.FeedbackSubmissions.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("invalid feedback: %w", err)
	}

	fb := &Feedback{
		RecommendationID: sub.RecommendationID,
		RequesterID:      sub.RequesterID,
		Action:           Action(sub.Action),
		Rating:           sub.Rating,
		Comment:          sub.Comment,
		SubmittedAt:      c.nowFn().UTC(),
	}

	if err := c.log.AppendFeedback(ctx, fb); err != nil {
		metrics.FeedbackSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("append feedback: %w", err)
	}

	metrics.FeedbackSubmissions.WithLabelValues(string(fb.Action)).Inc()
	c.logger.Debug().
		Str("recommendation_id", fb.RecommendationID).
		Str("requester_id", fb.RequesterID).
		Str("action", string(fb.Action)).
		Int("rating", fb.Rating).
		Msg("Feedback recorded")

	return fb, nil
}
