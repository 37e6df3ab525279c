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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/leadroutehq/leadroute"
	"github.com/leadroutehq/leadroute/config"
	redis_db "github.com/leadroutehq/leadroute/internal/redis-db"
	"github.com/leadroutehq/leadroute/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// processLeadCreated processes a lead.created event received from the Redis
// queue. Validation failures are dead-lettered instead of retried; every
// other failure is pushed back so asynq redelivers the task.
func (b *leadrouteInstance) processLeadCreated(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("leadroute.assignment.worker").Start(ctx, "Process Lead From Redis Queue")
	defer span.End()

	var event model.LeadCreatedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logrus.Error(err)
		return fmt.Errorf("malformed lead payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := b.engine.ProcessLeadCreated(ctx, &event)
	if err != nil {
		if errors.Is(err, leadroute.ErrInvalidLeadEvent) {
			// A payload that cannot be evaluated will never succeed on
			// redelivery; park it in the dead-letter queue for inspection.
			logrus.Errorf("rejecting lead %s: %v", event.LeadID, err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		logrus.Infof("Lead %s pushed back for retry due to error: %v", event.LeadID, err)
		return err
	}

	log.Println(" [*] Lead Processed", outcome.LeadID, outcome.Status)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.AssignmentQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *leadrouteInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	// Register handlers for the sharded assignment queues
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.AssignmentQueue, i)
		mux.HandleFunc(queueName, b.processLeadCreated)
	}

	mux.HandleFunc(cfg.Queue.WebhookQueue, leadroute.ProcessWebhook)
}

// workerCommands defines the "workers" command to start worker processes.
// The workers consume the sharded assignment queues and the webhook queue.
func workerCommands(b *leadrouteInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start leadroute workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			// Load configuration
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// Initialize observability
			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start the recovery processor that re-enqueues leads stuck in
			// evaluation after a worker crash.
			recovery := leadroute.NewEvaluationRecoveryProcessor(b.engine)
			recovery.Start(ctx)
			defer recovery.Stop()

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring", //  Optional: if you want to serve asynqmon under a sub-path.
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			// Start asynqmon HTTP server in a new goroutine
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
