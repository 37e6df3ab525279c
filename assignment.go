/*
Copyright 2025 Leadroute Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leadroute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadroutehq/leadroute/config"
	"github.com/leadroutehq/leadroute/internal/notification"
	"github.com/leadroutehq/leadroute/model"
)

// ErrInvalidLeadEvent marks an inbound event that fails validation. Workers
// route it to the dead-letter path instead of retrying.
var ErrInvalidLeadEvent = errors.New("invalid lead.created event")

// nowFunc is swapped in tests to pin capacity periods.
var nowFunc = time.Now

// ValidateLeadEvent checks the inbound event for the fields the engine cannot
// route without.
func ValidateLeadEvent(event *model.LeadCreatedEvent) error {
	if event == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidLeadEvent)
	}
	if event.LeadID == "" {
		return fmt.Errorf("%w: lead_id is required", ErrInvalidLeadEvent)
	}
	if event.FunnelID == "" {
		return fmt.Errorf("%w: funnel_id is required", ErrInvalidLeadEvent)
	}
	return nil
}

// ProcessLeadCreated runs the assignment state machine for one lead:
// Received -> Evaluating -> Assigned | Unassigned.
//
// The reservation guard in step one makes the whole pipeline idempotent under
// at-least-once delivery: exactly one delivery of a lead proceeds past it,
// and every later delivery exits without side effects. Transient store
// failures after the reservation are retried with exponential backoff; if
// retries are exhausted the lead stays reserved and the queue's redelivery
// picks it up again, so it is never silently dropped.
func (l *Leadroute) ProcessLeadCreated(ctx context.Context, event *model.LeadCreatedEvent) (*model.AssignmentOutcome, error) {
	if err := ValidateLeadEvent(event); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Processing Lead Assignment", trace.WithAttributes(
		attribute.String("lead.id", event.LeadID),
		attribute.String("funnel.id", event.FunnelID),
	))
	defer span.End()

	lead := event.Lead()

	reserved, err := l.reserveOutcome(ctx, lead)
	if err != nil {
		return nil, err
	}
	if !reserved {
		existing, err := l.datasource.GetOutcome(ctx, lead.LeadID)
		if err != nil {
			return nil, err
		}
		if existing.Status != model.StatusEvaluating {
			if !existing.IsPublished() {
				// A previous worker committed this outcome but died before
				// finishing the publish. Resume it; replays are idempotent on
				// lead ID for every consumer.
				logrus.Infof("Resuming publish for committed lead %s", lead.LeadID)
				if err := l.ensurePublished(ctx, existing); err != nil {
					return nil, err
				}
				return existing, nil
			}
			// Duplicate delivery of an already-processed lead. No side effects.
			log.Printf(" [*] Lead already processed, skipping: %s", lead.LeadID)
			return existing, nil
		}
		// A previous attempt reserved the slot but never committed. The
		// reservation makes re-running the evaluation safe.
		logrus.Infof("Resuming evaluation for reserved lead %s", lead.LeadID)
	}

	outcome, err := l.evaluate(ctx, lead)
	if err != nil {
		return nil, err
	}

	committed, err := l.commitOutcome(ctx, outcome)
	if err != nil {
		notification.NotifyError(fmt.Errorf("assignment commit exhausted retries for lead %s: %w", lead.LeadID, err))
		return nil, err
	}
	if !committed {
		// Lost the commit race to a concurrent redelivery. Its terminal
		// record and its event stand; this invocation must not publish.
		return l.datasource.GetOutcome(ctx, lead.LeadID)
	}

	if err := l.ensurePublished(ctx, outcome); err != nil {
		return outcome, err
	}

	log.Println(" [*] Lead Assignment Processed", lead.LeadID, outcome.Status)
	return outcome, nil
}

// ensurePublished runs the publish step for a committed outcome and records
// its completion on the outcome row. A failure leaves the marker unset, so
// the queue's redelivery resumes the publish without re-evaluating the lead.
func (l *Leadroute) ensurePublished(ctx context.Context, outcome *model.AssignmentOutcome) error {
	if outcome.IsPublished() {
		return nil
	}

	if err := l.publishOutcome(ctx, outcome); err != nil {
		notification.NotifyError(fmt.Errorf("outcome publish failed for lead %s: %w", outcome.LeadID, err))
		return err
	}

	publishedAt := nowFunc()
	err := backoff.Retry(func() error {
		return l.datasource.MarkOutcomePublished(ctx, outcome.LeadID, publishedAt)
	}, storeBackoff(ctx))
	if err != nil {
		// The event went out; a redelivery will replay the publish, which
		// consumers dedup on lead ID.
		notification.NotifyError(fmt.Errorf("publish marker write failed for lead %s: %w", outcome.LeadID, err))
		return err
	}
	outcome.PublishedAt = publishedAt

	return nil
}

// evaluate loads a rule snapshot and walks the ordered candidate list against
// the capacity ledger until one target admits the lead or the list is
// exhausted. A capped candidate is not an error; the walk simply advances.
func (l *Leadroute) evaluate(ctx context.Context, lead *model.Lead) (*model.AssignmentOutcome, error) {
	ctx, span := tracer.Start(ctx, "Evaluating Assignment Candidates")
	defer span.End()

	now := nowFunc()
	snapshot := l.snapshots.Current(ctx)
	candidates := MatchRules(lead, snapshot)

	if len(candidates) == 0 {
		return unassignedOutcome(lead, model.ReasonNoMatchingRule, now), nil
	}

	for _, candidate := range candidates {
		result, err := l.capacity.TryConsume(ctx, &candidate.Rule, now)
		if err != nil {
			return nil, err
		}
		if result.Capped() {
			logrus.Debugf("Target %s capped (%s) for lead %s, advancing", candidate.Rule.TargetID, result, lead.LeadID)
			continue
		}
		return assignedOutcome(lead, &candidate.Rule, now), nil
	}

	return unassignedOutcome(lead, model.ReasonAllTargetsCapped, now), nil
}

// publishOutcome emits the committed outcome as a domain event and, for
// unassigned leads, writes the triage pool row. The pool write and the event
// publish are retried independently; both are idempotent on lead ID, so
// replays are safe.
func (l *Leadroute) publishOutcome(ctx context.Context, outcome *model.AssignmentOutcome) error {
	if outcome.Status == model.StatusUnassigned {
		pooled := &model.UnassignedLead{
			LeadID:      outcome.LeadID,
			FunnelID:    outcome.FunnelID,
			ZipCode:     outcome.ZipCode,
			Reason:      outcome.Reason,
			EvaluatedAt: outcome.EvaluatedAt,
		}
		err := backoff.Retry(func() error {
			return l.datasource.RecordUnassignedLead(ctx, pooled)
		}, storeBackoff(ctx))
		if err != nil {
			return err
		}
	}

	webhook := outcomeWebhook(outcome)
	return backoff.Retry(func() error {
		return SendWebhook(webhook)
	}, storeBackoff(ctx))
}

func (l *Leadroute) reserveOutcome(ctx context.Context, lead *model.Lead) (bool, error) {
	var reserved bool
	err := backoff.Retry(func() error {
		var err error
		reserved, err = l.datasource.ReserveOutcome(ctx, lead)
		return err
	}, storeBackoff(ctx))
	return reserved, err
}

func (l *Leadroute) commitOutcome(ctx context.Context, outcome *model.AssignmentOutcome) (bool, error) {
	var committed bool
	err := backoff.Retry(func() error {
		var err error
		committed, err = l.datasource.CommitOutcome(ctx, outcome)
		return err
	}, storeBackoff(ctx))
	return committed, err
}

// storeBackoff bounds in-process retries of transient store failures. The
// queue's redelivery takes over once the bound is hit.
func storeBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if cfg, err := config.Fetch(); err == nil {
		b.MaxElapsedTime = time.Duration(cfg.Retry.MaxElapsedSeconds) * time.Second
	}
	return backoff.WithContext(b, ctx)
}

func assignedOutcome(lead *model.Lead, rule *model.AssignmentRule, now time.Time) *model.AssignmentOutcome {
	outcome := &model.AssignmentOutcome{
		LeadID:           lead.LeadID,
		FunnelID:         lead.FunnelID,
		ZipCode:          lead.ZipCode,
		Status:           model.StatusAssigned,
		AssignmentRuleID: rule.RuleID,
		AssignedAt:       now,
		EvaluatedAt:      now,
	}
	switch rule.TargetType {
	case model.TargetUser:
		outcome.AssignedUserID = rule.TargetID
	default:
		outcome.AssignedOrgID = rule.TargetID
	}
	return outcome
}

func unassignedOutcome(lead *model.Lead, reason string, now time.Time) *model.AssignmentOutcome {
	return &model.AssignmentOutcome{
		LeadID:      lead.LeadID,
		FunnelID:    lead.FunnelID,
		ZipCode:     lead.ZipCode,
		Status:      model.StatusUnassigned,
		Reason:      reason,
		EvaluatedAt: now,
	}
}

// outcomeWebhook maps a committed outcome to its outbound event.
func outcomeWebhook(outcome *model.AssignmentOutcome) NewWebhook {
	if outcome.Status == model.StatusAssigned {
		return NewWebhook{
			Event:  model.EventLeadAssigned,
			LeadID: outcome.LeadID,
			Payload: model.LeadAssignedEvent{
				LeadID:           outcome.LeadID,
				FunnelID:         outcome.FunnelID,
				AssignedOrgID:    outcome.AssignedOrgID,
				AssignedUserID:   outcome.AssignedUserID,
				AssignmentRuleID: outcome.AssignmentRuleID,
				AssignedAt:       outcome.AssignedAt,
			},
		}
	}
	return NewWebhook{
		Event:  model.EventLeadUnassigned,
		LeadID: outcome.LeadID,
		Payload: model.LeadUnassignedEvent{
			LeadID:      outcome.LeadID,
			FunnelID:    outcome.FunnelID,
			ZipCode:     outcome.ZipCode,
			Reason:      outcome.Reason,
			EvaluatedAt: outcome.EvaluatedAt,
		},
	}
}
