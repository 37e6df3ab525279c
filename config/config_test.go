package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Test case with empty ProjectName and DataSource DNS
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}
	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}
	// Test case with all required fields filled, expect no error
	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Test default port setting
	cnf.Server.Port = ""
	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
}

func TestQueueDefaults(t *testing.T) {
	cnf := Configuration{
		ProjectName: "Test Project",
		DataSource:  DataSourceConfig{Dns: "some-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cnf.Queue.AssignmentQueue != "new:assignment" {
		t.Errorf("Expected default assignment queue, got %s", cnf.Queue.AssignmentQueue)
	}
	if cnf.Queue.WebhookQueue != "new:webhook" {
		t.Errorf("Expected default webhook queue, got %s", cnf.Queue.WebhookQueue)
	}
	if cnf.Queue.NumberOfQueues != 4 {
		t.Errorf("Expected 4 assignment queues, got %d", cnf.Queue.NumberOfQueues)
	}
	if cnf.Queue.MaxRetryAttempts != 5 {
		t.Errorf("Expected 5 retry attempts, got %d", cnf.Queue.MaxRetryAttempts)
	}
	if cnf.Capacity.DailyRetentionHours != 48 {
		t.Errorf("Expected 48h daily retention, got %d", cnf.Capacity.DailyRetentionHours)
	}
	if cnf.Snapshot.CacheTTLSeconds != 30 {
		t.Errorf("Expected 30s snapshot cache TTL, got %d", cnf.Snapshot.CacheTTLSeconds)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "leadroute.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name()) // Clean up after the test

	// Sample configuration to write to the temp file
	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}
	data, err := json.Marshal(sampleConfig)
	if err != nil {
		t.Fatalf("Unable to marshal sample config: %v", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Unable to close temporary file: %v", err)
	}

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	cnf, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cnf.ProjectName != "Temp Project" {
		t.Errorf("Expected project name 'Temp Project', got %s", cnf.ProjectName)
	}
	if cnf.Queue.AssignmentQueue == "" {
		t.Error("Expected assignment queue default to be applied")
	}
}
