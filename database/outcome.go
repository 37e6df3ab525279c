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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/leadroutehq/leadroute/internal/apierror"
	"github.com/leadroutehq/leadroute/model"
)

// ReserveOutcome attempts the conditional create of the EVALUATING placeholder
// keyed by lead ID. It returns false when a row for the lead already exists,
// which is how concurrent duplicate deliveries of the same trigger event are
// totally ordered: exactly one caller sees true.
func (d Datasource) ReserveOutcome(ctx context.Context, lead *model.Lead) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadroute.assignment_outcomes (lead_id, funnel_id, zip_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_id) DO NOTHING
	`, lead.LeadID, lead.FunnelID, nullString(lead.ZipCode), model.StatusEvaluating, time.Now())
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reserve assignment outcome", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read reservation result", err)
	}
	return affected == 1, nil
}

// CommitOutcome overwrites the EVALUATING placeholder with the terminal
// outcome. It returns false when the placeholder was already overwritten; the
// committed record is never mutated again by this engine.
func (d Datasource) CommitOutcome(ctx context.Context, outcome *model.AssignmentOutcome) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadroute.assignment_outcomes
		SET status = $2,
			assigned_org_id = $3,
			assigned_user_id = $4,
			assignment_rule_id = $5,
			assigned_at = $6,
			reason = $7,
			evaluated_at = $8
		WHERE lead_id = $1 AND status = $9
	`,
		outcome.LeadID,
		outcome.Status,
		nullString(outcome.AssignedOrgID),
		nullString(outcome.AssignedUserID),
		nullString(outcome.AssignmentRuleID),
		nullTime(outcome.AssignedAt),
		nullString(outcome.Reason),
		nullTime(outcome.EvaluatedAt),
		model.StatusEvaluating,
	)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit assignment outcome", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read commit result", err)
	}
	return affected == 1, nil
}

// GetOutcome retrieves the outcome row for a lead, placeholder or terminal.
func (d Datasource) GetOutcome(ctx context.Context, leadID string) (*model.AssignmentOutcome, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT lead_id, funnel_id, zip_code, status, assigned_org_id, assigned_user_id, assignment_rule_id, assigned_at, reason, evaluated_at, published_at, created_at
		FROM leadroute.assignment_outcomes
		WHERE lead_id = $1
	`, leadID)

	outcome := model.AssignmentOutcome{}
	var zipCode, orgID, userID, ruleID, reason sql.NullString
	var assignedAt, evaluatedAt, publishedAt sql.NullTime

	err := row.Scan(
		&outcome.LeadID,
		&outcome.FunnelID,
		&zipCode,
		&outcome.Status,
		&orgID,
		&userID,
		&ruleID,
		&assignedAt,
		&reason,
		&evaluatedAt,
		&publishedAt,
		&outcome.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Assignment outcome not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve assignment outcome", err)
	}

	outcome.ZipCode = zipCode.String
	outcome.AssignedOrgID = orgID.String
	outcome.AssignedUserID = userID.String
	outcome.AssignmentRuleID = ruleID.String
	outcome.Reason = reason.String
	if assignedAt.Valid {
		outcome.AssignedAt = assignedAt.Time
	}
	if evaluatedAt.Valid {
		outcome.EvaluatedAt = evaluatedAt.Time
	}
	if publishedAt.Valid {
		outcome.PublishedAt = publishedAt.Time
	}

	return &outcome, nil
}

// MarkOutcomePublished records that the outcome's outbound event and pool
// write completed. An unset marker on a terminal row is the signal for
// redeliveries to resume the publish.
func (d Datasource) MarkOutcomePublished(ctx context.Context, leadID string, publishedAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE leadroute.assignment_outcomes
		SET published_at = $2
		WHERE lead_id = $1
	`, leadID, publishedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark assignment outcome published", err)
	}
	return nil
}

// GetStuckEvaluations retrieves leads whose placeholder predates olderThan and
// was never overwritten. The recovery processor re-enqueues them.
func (d Datasource) GetStuckEvaluations(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, funnel_id, zip_code, created_at
		FROM leadroute.assignment_outcomes
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, model.StatusEvaluating, olderThan, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck evaluations", err)
	}
	defer rows.Close()

	leads := []model.Lead{}

	for rows.Next() {
		lead := model.Lead{}
		var zipCode sql.NullString
		if err := rows.Scan(&lead.LeadID, &lead.FunnelID, &zipCode, &lead.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan stuck evaluation data", err)
		}
		lead.ZipCode = zipCode.String
		leads = append(leads, lead)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over stuck evaluations", err)
	}

	return leads, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
