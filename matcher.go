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
	"sort"

	"github.com/leadroutehq/leadroute/model"
)

// Candidate is one rule that matched a lead, carrying the geographic
// specificity of the match for tie-breaking.
type Candidate struct {
	Rule        model.AssignmentRule
	Specificity int
}

// MatchRules maps a lead against a rule snapshot and returns the ordered
// candidate list, best first. It is pure: the same snapshot and lead always
// produce the same list, which is the ordering contract the candidate walk
// and every downstream consumer depend on.
//
// Survivors are rules that are active, whose funnel scope covers the lead's
// funnel, and whose zip patterns match the lead's zip code (a rule with no
// patterns matches every zip with specificity 0). Ordering is priority
// ascending, then specificity descending, then rule ID ascending.
func MatchRules(lead *model.Lead, snapshot *RuleSnapshot) []Candidate {
	candidates := []Candidate{}

	for _, rule := range snapshot.Rules {
		if !rule.Active {
			continue
		}
		if !rule.AppliesToFunnel(lead.FunnelID) {
			continue
		}
		specificity, ok := rule.ZipSpecificity(lead.ZipCode)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Rule: rule, Specificity: specificity})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Rule.Priority != candidates[j].Rule.Priority {
			return candidates[i].Rule.Priority < candidates[j].Rule.Priority
		}
		if candidates[i].Specificity != candidates[j].Specificity {
			return candidates[i].Specificity > candidates[j].Specificity
		}
		return candidates[i].Rule.RuleID < candidates[j].Rule.RuleID
	})

	return candidates
}
