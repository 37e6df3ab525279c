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
	"encoding/json"

	"github.com/leadroutehq/leadroute/internal/apierror"
	"github.com/leadroutehq/leadroute/model"
)

// GetActiveRules retrieves every active assignment rule, ordered by rule ID so
// snapshot versions computed from the result are stable across loads.
func (d Datasource) GetActiveRules(ctx context.Context) ([]model.AssignmentRule, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT rule_id, active, priority, funnel_scope, zip_patterns, target_type, target_id, daily_cap, monthly_cap, created_at, updated_at
		FROM leadroute.assignment_rules
		WHERE active = TRUE
		ORDER BY rule_id ASC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve assignment rules", err)
	}
	defer rows.Close()

	rules := []model.AssignmentRule{}

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over assignment rules", err)
	}

	return rules, nil
}

// GetRuleByID retrieves a single rule, active or not.
func (d Datasource) GetRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT rule_id, active, priority, funnel_scope, zip_patterns, target_type, target_id, daily_cap, monthly_cap, created_at, updated_at
		FROM leadroute.assignment_rules
		WHERE rule_id = $1
	`, id)

	return scanRule(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*model.AssignmentRule, error) {
	rule := model.AssignmentRule{}
	var funnelScopeJSON, zipPatternsJSON []byte
	var dailyCap, monthlyCap sql.NullInt64

	err := row.Scan(
		&rule.RuleID,
		&rule.Active,
		&rule.Priority,
		&funnelScopeJSON,
		&zipPatternsJSON,
		&rule.TargetType,
		&rule.TargetID,
		&dailyCap,
		&monthlyCap,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Assignment rule not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan assignment rule data", err)
	}

	if err := json.Unmarshal(funnelScopeJSON, &rule.FunnelScope); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal funnel scope", err)
	}
	if err := json.Unmarshal(zipPatternsJSON, &rule.ZipPatterns); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal zip patterns", err)
	}

	if dailyCap.Valid {
		rule.DailyCap = &dailyCap.Int64
	}
	if monthlyCap.Valid {
		rule.MonthlyCap = &monthlyCap.Int64
	}

	return &rule, nil
}
