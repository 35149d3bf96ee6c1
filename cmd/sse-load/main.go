package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return i
}

// sse-load holds many event streams open against a running server while one
// writer mutates the list, then checks that every stream saw the writer's
// changes and the writer never saw its own.
func main() {
	cfg := loadConfig{
		BaseURL:     getenv("SERVER_URL", "http://localhost:3000/api"),
		Connections: getenvInt("SSE_CONNECTIONS", 200),
		Duration:    time.Duration(getenvInt("DURATION_SEC", 60)) * time.Second,
		WriteEvery:  time.Duration(getenvInt("WRITE_INTERVAL_MS", 200)) * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	rep := runLoad(ctx, cfg, log.StandardLogger())
	entry := log.WithFields(log.Fields{
		"connections":         cfg.Connections,
		"duration_sec":        int(cfg.Duration.Seconds()),
		"mutations":           rep.Mutations,
		"events_received":     rep.Events,
		"connection_failures": rep.Failures,
		"echoes":              rep.Echoes,
		"starved_streams":     rep.Starved,
	})
	if err := rep.Check(); err != nil {
		entry.WithError(err).Error("load run failed")
		os.Exit(1)
	}
	entry.Info("load run passed")
}
