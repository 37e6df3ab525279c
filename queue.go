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
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/leadroutehq/leadroute/config"
	redis_db "github.com/leadroutehq/leadroute/internal/redis-db"

	"github.com/hibiken/asynq"
	"github.com/leadroutehq/leadroute/model"
)

// Queue represents a queue for handling assignment tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue enqueues a lead.created event for assignment.
//
// The task ID is the lead ID, so asynq rejects a second enqueue of the same
// lead while the first is still pending. That is a fast-path dedup only; the
// orchestrator's reservation guard is the one that makes duplicate delivery
// safe end-to-end.
func (q *Queue) Enqueue(ctx context.Context, event *model.LeadCreatedEvent) error {
	ctx, span := tracer.Start(ctx, "Adding Lead To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, q.assignmentTask(cfg, event, payload), asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf(" [*] Lead already enqueued, skipping: %+v", event.LeadID)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued lead: %+v", event.LeadID)

	return nil
}

// assignmentTask generates a task for a lead and assigns it to a specific queue
// based on the lead ID. Sharding by lead ID keeps duplicate deliveries of the
// same lead on the same queue while spreading unrelated leads across queues.
func (q *Queue) assignmentTask(cfg *config.Configuration, event *model.LeadCreatedEvent, payload []byte) *asynq.Task {
	queueIndex := hashLeadID(event.LeadID) % cfg.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cfg.Queue.AssignmentQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(event.LeadID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// hashLeadID returns a consistent hash value for a string lead ID.
func hashLeadID(leadID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(leadID))
	return int(hasher.Sum32())
}

// GetLeadFromQueue retrieves a pending lead event from the queue by its ID.
func (q *Queue) GetLeadFromQueue(leadID string) (*model.LeadCreatedEvent, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// Iterate over all assignment queues
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.AssignmentQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, leadID)
		if err == nil && task != nil {
			var event model.LeadCreatedEvent
			if err := json.Unmarshal(task.Payload, &event); err != nil {
				return nil, err
			}
			return &event, nil
		}
	}
	return nil, nil // Return nil if lead is not found in any queue
}
