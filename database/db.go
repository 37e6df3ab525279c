package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/leadroutehq/leadroute/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "pinging database")
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the engine's schema and tables if they do not exist. The
// assignment_rules table is written by the rule-management service; it is
// created here too so a fresh environment boots without ordering constraints.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS leadroute`); err != nil {
		return errors.Wrap(err, "creating schema")
	}
	if err := createAssignmentRuleTable(db); err != nil {
		return err
	}
	if err := createAssignmentOutcomeTable(db); err != nil {
		return err
	}
	if err := createUnassignedLeadTable(db); err != nil {
		return err
	}
	return nil
}

// createAssignmentRuleTable creates a PostgreSQL table for the AssignmentRule struct
func createAssignmentRuleTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadroute.assignment_rules (
			id SERIAL PRIMARY KEY,
			rule_id TEXT NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			priority INTEGER NOT NULL DEFAULT 100,
			funnel_scope JSONB NOT NULL DEFAULT '[]',
			zip_patterns JSONB NOT NULL DEFAULT '[]',
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			daily_cap BIGINT,
			monthly_cap BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return errors.Wrap(err, "creating assignment_rules table")
}

// createAssignmentOutcomeTable creates a PostgreSQL table for the AssignmentOutcome struct.
// The unique constraint on lead_id is what makes the dedup guard's conditional
// create race-free under concurrent duplicate deliveries.
func createAssignmentOutcomeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadroute.assignment_outcomes (
			id SERIAL PRIMARY KEY,
			lead_id TEXT NOT NULL UNIQUE,
			funnel_id TEXT NOT NULL,
			zip_code TEXT,
			status TEXT NOT NULL,
			assigned_org_id TEXT,
			assigned_user_id TEXT,
			assignment_rule_id TEXT,
			assigned_at TIMESTAMP,
			reason TEXT,
			evaluated_at TIMESTAMP,
			published_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return errors.Wrap(err, "creating assignment_outcomes table")
}

// createUnassignedLeadTable creates a PostgreSQL table for the unassigned pool
func createUnassignedLeadTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadroute.unassigned_leads (
			id SERIAL PRIMARY KEY,
			lead_id TEXT NOT NULL UNIQUE,
			funnel_id TEXT NOT NULL,
			zip_code TEXT,
			reason TEXT NOT NULL,
			evaluated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return errors.Wrap(err, "creating unassigned_leads table")
}
