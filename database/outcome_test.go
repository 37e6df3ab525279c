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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadroutehq/leadroute/internal/apierror"
	"github.com/leadroutehq/leadroute/model"
)

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func testLead() *model.Lead {
	return &model.Lead{
		LeadID:    gofakeit.UUID(),
		FunnelID:  "funnel_a",
		ZipCode:   "33101",
		CreatedAt: time.Now(),
	}
}

func TestReserveOutcomeFirstDeliveryWins(t *testing.T) {
	ds, mock := newTestDatasource(t)
	lead := testLead()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leadroute.assignment_outcomes")).
		WithArgs(lead.LeadID, lead.FunnelID, sqlmock.AnyArg(), model.StatusEvaluating, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reserved, err := ds.ReserveOutcome(context.Background(), lead)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveOutcomeDuplicateLoses(t *testing.T) {
	ds, mock := newTestDatasource(t)
	lead := testLead()

	// ON CONFLICT DO NOTHING reports zero affected rows for the loser.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leadroute.assignment_outcomes")).
		WithArgs(lead.LeadID, lead.FunnelID, sqlmock.AnyArg(), model.StatusEvaluating, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	reserved, err := ds.ReserveOutcome(context.Background(), lead)
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestReserveOutcomeUniqueViolationIsNotAnError(t *testing.T) {
	ds, mock := newTestDatasource(t)
	lead := testLead()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leadroute.assignment_outcomes")).
		WillReturnError(&pq.Error{Code: "23505"})

	reserved, err := ds.ReserveOutcome(context.Background(), lead)
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestReserveOutcomeStoreFailure(t *testing.T) {
	ds, mock := newTestDatasource(t)
	lead := testLead()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leadroute.assignment_outcomes")).
		WillReturnError(errors.New("connection refused"))

	_, err := ds.ReserveOutcome(context.Background(), lead)
	require.Error(t, err)

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestCommitOutcomeOverwritesPlaceholder(t *testing.T) {
	ds, mock := newTestDatasource(t)
	now := time.Now()
	outcome := &model.AssignmentOutcome{
		LeadID:           "lead_1",
		Status:           model.StatusAssigned,
		AssignedOrgID:    "org_1",
		AssignmentRuleID: "rule_1",
		AssignedAt:       now,
		EvaluatedAt:      now,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leadroute.assignment_outcomes")).
		WithArgs(outcome.LeadID, outcome.Status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), model.StatusEvaluating).
		WillReturnResult(sqlmock.NewResult(0, 1))

	committed, err := ds.CommitOutcome(context.Background(), outcome)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitOutcomeAlreadyTerminal(t *testing.T) {
	ds, mock := newTestDatasource(t)
	outcome := &model.AssignmentOutcome{
		LeadID: "lead_1",
		Status: model.StatusUnassigned,
		Reason: model.ReasonNoMatchingRule,
	}

	// The guarded update matches nothing once another delivery committed.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE leadroute.assignment_outcomes")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	committed, err := ds.CommitOutcome(context.Background(), outcome)
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestGetOutcome(t *testing.T) {
	ds, mock := newTestDatasource(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"lead_id", "funnel_id", "zip_code", "status", "assigned_org_id", "assigned_user_id",
		"assignment_rule_id", "assigned_at", "reason", "evaluated_at", "published_at", "created_at",
	}).AddRow("lead_1", "funnel_a", "33101", model.StatusAssigned, "org_1", nil, "rule_1", now, nil, now, nil, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leadroute.assignment_outcomes")).
		WithArgs("lead_1").
		WillReturnRows(rows)

	outcome, err := ds.GetOutcome(context.Background(), "lead_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, outcome.Status)
	assert.Equal(t, "org_1", outcome.AssignedOrgID)
	assert.Empty(t, outcome.AssignedUserID)
	assert.True(t, outcome.IsAssigned())

	// A NULL published_at reads as an unpublished outcome.
	assert.False(t, outcome.IsPublished())
}

func TestMarkOutcomePublished(t *testing.T) {
	ds, mock := newTestDatasource(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("SET published_at")).
		WithArgs("lead_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.MarkOutcomePublished(context.Background(), "lead_1", now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOutcomeNotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leadroute.assignment_outcomes")).
		WithArgs("lead_missing").
		WillReturnRows(sqlmock.NewRows([]string{"lead_id"}))

	_, err := ds.GetOutcome(context.Background(), "lead_missing")
	require.Error(t, err)

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
