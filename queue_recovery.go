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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadroutehq/leadroute/model"
)

// EvaluationRecoveryProcessor re-enqueues leads stuck in the EVALUATING state.
// A lead gets stuck when a worker reserves the placeholder and dies before
// committing, after the queue's own redelivery budget is spent. Re-enqueueing
// is safe at any time: the reservation guard turns a replay of an already
// finished lead into a no-op.
type EvaluationRecoveryProcessor struct {
	engine         *Leadroute
	batchSize      int
	maxWorkers     int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewEvaluationRecoveryProcessor(engine *Leadroute) *EvaluationRecoveryProcessor {
	maxWorkers := 10

	return &EvaluationRecoveryProcessor{
		engine:         engine,
		batchSize:      maxWorkers * 100,
		maxWorkers:     maxWorkers,
		pollInterval:   30 * time.Second,
		stuckThreshold: 1 * time.Hour,
		stopCh:         make(chan struct{}),
	}
}

func (p *EvaluationRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Evaluation recovery processor started")
}

func (p *EvaluationRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Evaluation recovery processor stopped")
}

func (p *EvaluationRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *EvaluationRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Evaluation recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Evaluation recovery processor stop signal received")
			return
		case <-ticker.C:
			p.recoverWithThreshold(ctx, p.stuckThreshold)
		}
	}
}

// RecoverStuckEvaluations triggers an immediate recovery pass using the
// provided threshold.
func (l *Leadroute) RecoverStuckEvaluations(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < 2*time.Minute {
		threshold = 2 * time.Minute
	}

	processor := NewEvaluationRecoveryProcessor(l)
	return processor.recoverWithThreshold(ctx, threshold), nil
}

func (p *EvaluationRecoveryProcessor) recoverWithThreshold(ctx context.Context, threshold time.Duration) int {
	olderThan := nowFunc().Add(-threshold)
	stuckLeads, err := p.engine.datasource.GetStuckEvaluations(ctx, olderThan, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get stuck evaluations: %v", err)
		return 0
	}

	if len(stuckLeads) == 0 {
		return 0
	}

	logrus.Infof("Re-enqueueing %d stuck evaluations with %d workers (threshold=%v)", len(stuckLeads), p.maxWorkers, threshold)

	sem := make(chan struct{}, p.maxWorkers)
	var batchWg sync.WaitGroup

	for i := range stuckLeads {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(lead *model.Lead) {
			defer batchWg.Done()
			defer func() { <-sem }()
			event := &model.LeadCreatedEvent{
				LeadID:    lead.LeadID,
				FunnelID:  lead.FunnelID,
				ZipCode:   lead.ZipCode,
				CreatedAt: lead.CreatedAt,
			}
			if err := p.engine.queue.Enqueue(ctx, event); err != nil {
				logrus.Errorf("failed to re-enqueue stuck lead %s: %v", lead.LeadID, err)
			}
		}(&stuckLeads[i])
	}

	batchWg.Wait()
	return len(stuckLeads)
}
