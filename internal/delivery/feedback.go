package delivery

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/notion"
	"github.com/huntred/circle/pkg/salesforce"
)

// sentOpportunities returns the Salesforce IDs of the cycle's sent
// proposals.
func sentOpportunities(cc *circle.CycleContext) []string {
	if cc.Proposals == nil {
		return nil
	}
	var ids []string
	for _, p := range cc.Proposals.Proposals {
		if p.Sent && p.ExternalID != "" {
			ids = append(ids, p.ExternalID)
		}
	}
	return ids
}

// ClientResponseSource reports how prospects answered sent proposals, read
// from opportunity stages.
type ClientResponseSource struct {
	client salesforce.Client
}

// NewClientResponseSource creates a ClientResponseSource.
func NewClientResponseSource(client salesforce.Client) *ClientResponseSource {
	return &ClientResponseSource{client: client}
}

func (s *ClientResponseSource) Name() string { return "client_responses" }

// Collect counts closed opportunities and scores the share won.
func (s *ClientResponseSource) Collect(ctx context.Context, cc *circle.CycleContext) (*model.SourceFeedback, error) {
	ids := sentOpportunities(cc)
	if len(ids) == 0 {
		return &model.SourceFeedback{}, nil
	}
	opps, err := salesforce.FindOpportunities(ctx, s.client, ids)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: client responses")
	}

	fb := &model.SourceFeedback{}
	stages := make(map[string]int)
	won := 0
	for _, o := range opps {
		stages[o.StageName]++
		if !o.IsClosed {
			continue
		}
		fb.Count++
		if o.IsWon {
			won++
		}
	}
	if fb.Count > 0 {
		fb.QualityScore = float64(won) / float64(fb.Count)
		if lost := fb.Count - won; lost > won {
			fb.Suggestions = append(fb.Suggestions, fmt.Sprintf("%d of %d closed proposals lost", lost, fb.Count))
		}
	}
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fb.PatternChanges = append(fb.PatternChanges, fmt.Sprintf("stage:%s:%d", name, stages[name]))
	}
	return fb, nil
}

// EngagementSource measures prospect engagement through activities logged
// against sent proposals.
type EngagementSource struct {
	client salesforce.Client
}

// NewEngagementSource creates an EngagementSource.
func NewEngagementSource(client salesforce.Client) *EngagementSource {
	return &EngagementSource{client: client}
}

func (s *EngagementSource) Name() string { return "proposal_engagement" }

// Collect counts logged tasks and scores the share of sent proposals with
// at least one.
func (s *EngagementSource) Collect(ctx context.Context, cc *circle.CycleContext) (*model.SourceFeedback, error) {
	ids := sentOpportunities(cc)
	if len(ids) == 0 {
		return &model.SourceFeedback{}, nil
	}
	tasks, err := salesforce.FindTasks(ctx, s.client, ids)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: engagement")
	}

	engaged := make(map[string]bool)
	for _, t := range tasks {
		engaged[t.WhatID] = true
	}
	fb := &model.SourceFeedback{Count: len(tasks)}
	fb.QualityScore = float64(len(engaged)) / float64(len(ids))
	if len(engaged) == 0 {
		fb.Suggestions = append(fb.Suggestions, "no activity logged on sent proposals")
	}
	return fb, nil
}

// ReviewDecisionSource reads recruiter decisions on queued proposals from
// the Notion review database.
type ReviewDecisionSource struct {
	client notion.Client
	dbID   string
}

// NewReviewDecisionSource creates a ReviewDecisionSource over database dbID.
func NewReviewDecisionSource(client notion.Client, dbID string) *ReviewDecisionSource {
	return &ReviewDecisionSource{client: client, dbID: dbID}
}

func (s *ReviewDecisionSource) Name() string { return "review_decisions" }

// Collect scores the approval rate of reviewed proposals. Rejections per
// tier are reported as pattern changes.
func (s *ReviewDecisionSource) Collect(ctx context.Context, _ *circle.CycleContext) (*model.SourceFeedback, error) {
	approved, err := notion.QueryBySelect(ctx, s.client, s.dbID, propStatus, StatusApproved)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: approved reviews")
	}
	rejected, err := notion.QueryBySelect(ctx, s.client, s.dbID, propStatus, StatusRejected)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: rejected reviews")
	}

	fb := &model.SourceFeedback{Count: len(approved) + len(rejected)}
	if fb.Count == 0 {
		return fb, nil
	}
	fb.QualityScore = float64(len(approved)) / float64(fb.Count)
	if len(rejected) > len(approved) {
		fb.Suggestions = append(fb.Suggestions, "reviewers reject most queued proposals")
	}

	byTier := make(map[string]int)
	for _, p := range rejected {
		byTier[notion.SelectName(p, propTier)]++
	}
	for _, tier := range []model.ValueTier{model.TierHigh, model.TierMedium, model.TierLow} {
		if n := byTier[string(tier)]; n > 0 {
			fb.PatternChanges = append(fb.PatternChanges, fmt.Sprintf("rejected:%s:%d", tier, n))
		}
	}
	return fb, nil
}
