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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leadroutehq/leadroute"
	"github.com/leadroutehq/leadroute/config"
	"github.com/leadroutehq/leadroute/database"
	"github.com/leadroutehq/leadroute/internal/notification"
)

// Leadroute is the CLI application wrapper around the root cobra command.
type Leadroute struct {
	cmd *cobra.Command
}

// leadrouteInstance holds the initialized assignment engine and the loaded
// configuration, shared by every subcommand.
type leadrouteInstance struct {
	engine *leadroute.Leadroute
	cnf    *config.Configuration
}

// recoverPanic recovers from any panic during execution, logs the error, and
// exits the program gracefully.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun initializes the configuration and the engine before any subcommand
// executes.
func preRun(app *leadrouteInstance) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		err = config.InitConfig(configFile)
		if err != nil {
			log.Println("error loading config", err)
			return err
		}

		// Fetch the configuration settings.
		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// Initialize the engine using the fetched configuration.
		engine, err := setupLeadroute(cnf)
		if err != nil {
			notification.NotifyError(err) // Notify via the internal notification system
			log.Fatal(err)                // Log the fatal error
		}

		// Assign the engine and configuration to the app struct.
		app.engine = engine
		app.cnf = cnf

		return nil
	}
}

// setupLeadroute creates and initializes a new engine instance based on the
// provided configuration. It connects to the data source using the
// configuration settings.
func setupLeadroute(cfg *config.Configuration) (*leadroute.Leadroute, error) {
	// Initialize a new data source from the configuration.
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	// Create a new engine instance using the initialized data source.
	engine, err := leadroute.NewLeadroute(db)
	if err != nil {
		return nil, fmt.Errorf("error creating leadroute: %v", err)
	}
	return engine, nil
}

// NewCLI creates the command-line interface for the Leadroute application.
// It sets up the root command and the server, workers, and migrate
// subcommands.
func NewCLI() *Leadroute {
	var configFile string     // Configuration file path (defaults to ./leadroute.json)
	b := &leadrouteInstance{} // Instance to be passed into commands

	// Define the root command with usage and description.
	var rootCmd = &cobra.Command{
		Use:   "leadroute",
		Short: "Capacity-aware lead assignment engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	// Add a persistent flag to the root command for specifying the config file.
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./leadroute.json", "Configuration file for leadroute")

	// Set the persistent pre-run hook to initialize the app and config before executing any command.
	rootCmd.PersistentPreRunE = preRun(b)

	// Add various subcommands to the root command.
	rootCmd.AddCommand(serverCommands(b))  // Command for starting the server
	rootCmd.AddCommand(workerCommands(b))  // Command for worker processes
	rootCmd.AddCommand(migrateCommands(b)) // Command for database/schema migrations

	return &Leadroute{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Leadroute) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print any errors that occur
		os.Exit(1)                   // Exit the program with an error status
	}
}

// main recovers from any panic, initializes the CLI, and executes it.
func main() {
	defer recoverPanic() // Ensure that any panic is handled gracefully

	cli := NewCLI()  // Create the CLI application
	cli.executeCLI() // Execute the CLI commands
}
