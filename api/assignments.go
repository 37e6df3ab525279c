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

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadroutehq/leadroute/internal/apierror"
)

// GetAssignment returns the assignment outcome for a lead, whether terminal
// or still evaluating.
func (a Api) GetAssignment(c *gin.Context) {
	leadID, passed := c.Params.Get("lead_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead_id is required. pass id in the route /assignments/:lead_id"})
		return
	}

	outcome, err := a.engine.GetOutcome(c.Request.Context(), leadID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"outcome": outcome}
	if outcome.AssignmentRuleID != "" {
		// The winning rule may have been edited or deactivated since the
		// assignment; the outcome record itself is what stands.
		if rule, err := a.engine.GetRule(c.Request.Context(), outcome.AssignmentRuleID); err == nil {
			resp["rule"] = rule
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetUnassignedLeads returns a page of the unassigned pool for triage.
func (a Api) GetUnassignedLeads(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	leads, err := a.engine.GetUnassignedLeads(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unassigned": leads, "limit": limit, "offset": offset})
}

// GetTargetUsage reports a target's current daily and monthly capacity
// consumption.
func (a Api) GetTargetUsage(c *gin.Context) {
	targetID, passed := c.Params.Get("target_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_id is required. pass id in the route /targets/:target_id/usage"})
		return
	}

	daily, monthly, err := a.engine.TargetUsage(c.Request.Context(), targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"target_id": targetID, "daily": daily, "monthly": monthly})
}
