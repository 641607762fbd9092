// Command predict_soil_moisture produces a 72-hour hourly soil-moisture
// forecast from an initial state file and a weather forecast file.
//
// Usage:
//
//	predict_soil_moisture <initial_state.json> <weather_data.json> [--output path]
//	predict_soil_moisture serve [--addr :8080]
//
// Configuration is read from an optional YAML file (--config), a .env file
// and SOILCAST_* environment variables. LLM correction is enabled by setting
// SOILCAST_LLM_PROVIDER and the provider's API key.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
