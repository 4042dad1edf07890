package main

import "os"

// AppConfig holds server settings read from the environment.
type AppConfig struct {
	Port         string
	NATSURL      string // empty disables the event bus mirror
	StationsFile string
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Port:         getEnv("PORT", "8080"),
		NATSURL:      os.Getenv("NATS_URL"),
		StationsFile: getEnv("STATIONS_FILE", "assets/stations.yaml"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
