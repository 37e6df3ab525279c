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

package model

import (
	"strings"
	"time"
)

// TargetType identifies the kind of entity a rule routes leads to.
type TargetType string

const (
	TargetOrganization TargetType = "ORG"
	TargetUser         TargetType = "USER"
)

// FunnelScopeAny marks a rule that applies to every funnel.
const FunnelScopeAny = "any"

// AssignmentRule is the routing configuration entity. Rules are created and
// updated exclusively by the rule-management service; the engine only ever
// reads point-in-time snapshots of them.
//
// Priority values need not be unique. Ties are broken by zip-pattern
// specificity (longer matched prefix wins), then by RuleID lexical order, so
// candidate ordering is fully deterministic.
type AssignmentRule struct {
	RuleID      string     `json:"rule_id"`
	Active      bool       `json:"active"`
	Priority    int        `json:"priority"`
	FunnelScope []string   `json:"funnel_scope"`
	ZipPatterns []string   `json:"zip_patterns"`
	TargetType  TargetType `json:"target_type"`
	TargetID    string     `json:"target_id"`
	DailyCap    *int64     `json:"daily_cap,omitempty"`
	MonthlyCap  *int64     `json:"monthly_cap,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AppliesToFunnel reports whether the rule's funnel scope covers the given
// funnel. An empty scope or a scope containing "any" covers every funnel.
func (r *AssignmentRule) AppliesToFunnel(funnelID string) bool {
	if len(r.FunnelScope) == 0 {
		return true
	}
	for _, f := range r.FunnelScope {
		if f == FunnelScopeAny || f == funnelID {
			return true
		}
	}
	return false
}

// ZipSpecificity computes the rule's geographic match specificity against a
// lead's zip code. A rule with no zip patterns matches every zip code with
// specificity 0 (funnel-only match). Otherwise the specificity is the length
// of the longest pattern that is a prefix of the zip code; a rule with
// patterns but no matching prefix does not match at all.
func (r *AssignmentRule) ZipSpecificity(zipCode string) (int, bool) {
	if len(r.ZipPatterns) == 0 {
		return 0, true
	}
	longest := -1
	for _, pattern := range r.ZipPatterns {
		if pattern == "" {
			continue
		}
		if strings.HasPrefix(zipCode, pattern) && len(pattern) > longest {
			longest = len(pattern)
		}
	}
	if longest < 0 {
		return 0, false
	}
	return longest, true
}
