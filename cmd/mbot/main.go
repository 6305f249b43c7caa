// Package main is a command-line tool for compiling and running
// missions.
//
// Settings come from flags, with defaults from the environment
// (which a .env file in the working directory can supply):
//
//	MBOT_MQTT_BROKER  MQTT broker for "run --mqtt"
//	MBOT_DB           BoltDB file for "run"
//	MBOT_TICK         tick period for "run", like "100ms"
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
