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

	model2 "github.com/leadroutehq/leadroute/api/model"

	"github.com/gin-gonic/gin"
)

// IngestLeadCreated accepts a lead.created event from the capture service and
// enqueues it for assignment. Duplicate submissions of the same lead are
// accepted and deduplicated downstream.
func (a Api) IngestLeadCreated(c *gin.Context) {
	var req model2.LeadCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateLeadCreatedRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.engine.EnqueueLeadCreated(c.Request.Context(), req.ToLeadCreatedEvent()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"lead_id": req.LeadID, "status": "queued"})
}
