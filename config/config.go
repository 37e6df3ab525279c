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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SecretKey string `json:"secret_key" envconfig:"LEADROUTE_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"LEADROUTE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEADROUTE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"LEADROUTE_REDIS_DNS"`
}

// QueueConfig controls the asynq queues the engine enqueues to and the worker
// fleet consumes from. Assignment work is sharded across NumberOfQueues lead
// queues so duplicate deliveries of the same lead land on the same queue.
type QueueConfig struct {
	AssignmentQueue  string `json:"assignment_queue" envconfig:"LEADROUTE_QUEUE_ASSIGNMENT"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"LEADROUTE_QUEUE_WEBHOOK"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"LEADROUTE_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"LEADROUTE_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"LEADROUTE_QUEUE_MONITORING_PORT"`
}

// CapacityConfig tunes the capacity ledger. Retention is how long a period's
// counter key is kept in Redis after its first increment.
type CapacityConfig struct {
	DailyRetentionHours   int `json:"daily_retention_hours" envconfig:"LEADROUTE_CAPACITY_DAILY_RETENTION_HOURS"`
	MonthlyRetentionHours int `json:"monthly_retention_hours" envconfig:"LEADROUTE_CAPACITY_MONTHLY_RETENTION_HOURS"`
}

// SnapshotConfig tunes rule snapshot caching. The engine always evaluates
// against an immutable snapshot; the TTL only bounds how stale a cached
// snapshot may be before the provider reloads it from the store.
type SnapshotConfig struct {
	CacheTTLSeconds int `json:"cache_ttl_seconds" envconfig:"LEADROUTE_SNAPSHOT_CACHE_TTL_SECONDS"`
}

// RetryConfig bounds the in-process exponential backoff applied to transient
// store failures inside the orchestrator.
type RetryConfig struct {
	MaxElapsedSeconds int `json:"max_elapsed_seconds" envconfig:"LEADROUTE_RETRY_MAX_ELAPSED_SECONDS"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// OtelGrafanaCloud carries the OTLP endpoint credentials used when telemetry
// is enabled.
type OtelGrafanaCloud struct {
	OtelExporterOtlpProtocol string `json:"OTEL_EXPORTER_OTLP_PROTOCOL" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	OtelExporterOtlpEndpoint string `json:"OTEL_EXPORTER_OTLP_ENDPOINT" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpHeaders  string `json:"OTEL_EXPORTER_OTLP_HEADERS" envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName      string           `json:"project_name" envconfig:"LEADROUTE_PROJECT_NAME"`
	EnableTelemetry  bool             `json:"enable_telemetry" envconfig:"LEADROUTE_ENABLE_TELEMETRY"`
	OtelGrafanaCloud OtelGrafanaCloud `json:"otel_grafana_cloud"`
	Server           ServerConfig     `json:"server"`
	DataSource       DataSourceConfig `json:"data_source"`
	Redis            RedisConfig      `json:"redis"`
	Queue            QueueConfig      `json:"queue"`
	Capacity         CapacityConfig   `json:"capacity"`
	Snapshot         SnapshotConfig   `json:"snapshot"`
	Retry            RetryConfig      `json:"retry"`
	Notification     Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("leadroute", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called leadroute.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Leadroute Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.applyDefaults()

	// Counter keys must outlive their period so triage can still inspect them.
	if cnf.Capacity.DailyRetentionHours <= 0 {
		cnf.Capacity.DailyRetentionHours = 48
	}
	if cnf.Capacity.MonthlyRetentionHours <= 0 {
		cnf.Capacity.MonthlyRetentionHours = 24 * 62
	}

	if cnf.Snapshot.CacheTTLSeconds <= 0 {
		cnf.Snapshot.CacheTTLSeconds = 30
	}

	if cnf.Retry.MaxElapsedSeconds <= 0 {
		cnf.Retry.MaxElapsedSeconds = 30
	}

	return nil
}

func (q *QueueConfig) applyDefaults() {
	if q.AssignmentQueue == "" {
		q.AssignmentQueue = "new:assignment"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "new:webhook"
	}
	if q.NumberOfQueues <= 0 {
		q.NumberOfQueues = 4
	}
	if q.MaxRetryAttempts <= 0 {
		q.MaxRetryAttempts = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5003"
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Queue.applyDefaults()
	if mockConfig.Capacity.DailyRetentionHours <= 0 {
		mockConfig.Capacity.DailyRetentionHours = 48
	}
	if mockConfig.Capacity.MonthlyRetentionHours <= 0 {
		mockConfig.Capacity.MonthlyRetentionHours = 24 * 62
	}
	if mockConfig.Snapshot.CacheTTLSeconds <= 0 {
		mockConfig.Snapshot.CacheTTLSeconds = 1
	}
	if mockConfig.Retry.MaxElapsedSeconds <= 0 {
		mockConfig.Retry.MaxElapsedSeconds = 1
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
