package main

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Resized/todo-list/api"
	"github.com/Resized/todo-list/broadcast"
	"github.com/Resized/todo-list/storage"
)

type config struct {
	Debug bool
	Addr  string

	StorageConnStr string
	TasksTable     string

	RedisConnStr string
	CacheTTL     time.Duration
	RelayChannel string

	ChangeQueue    string
	JournalWorkers int
	JournalBuffer  int

	Stream api.StreamConfig
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		Addr:           ":3000",
		StorageConnStr: getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:     getenv("TASKS_TABLE"),
		RedisConnStr:   getenv("REDIS_CONNECTION_STRING"),
		CacheTTL:       storage.DefaultListTTL,
		RelayChannel:   broadcast.DefaultRelayChannel,
		ChangeQueue:    getenv("CHANGE_QUEUE"),
		JournalWorkers: storage.DefaultJournalWorkers,
		JournalBuffer:  storage.DefaultJournalBuffer,
		Stream: api.StreamConfig{
			Buffer:       broadcast.DefaultChannelBuffer,
			WriteTimeout: api.DefaultStreamWriteTimeout,
			KeepAlive:    api.DefaultStreamKeepAlive,
		},
	}
	if dbg, err := strconv.ParseBool(getenv("DEBUG")); err == nil {
		cfg.Debug = dbg
	}
	if v := getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if cfg.StorageConnStr != "" && cfg.TasksTable == "" {
		return cfg, fmt.Errorf("missing TASKS_TABLE")
	}
	if cfg.ChangeQueue != "" && cfg.StorageConnStr == "" {
		return cfg, fmt.Errorf("CHANGE_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if v := getenv("RELAY_CHANNEL"); v != "" {
		cfg.RelayChannel = v
	}

	var err error
	if cfg.CacheTTL, err = envDuration(getenv, "TASKS_CACHE_TTL", cfg.CacheTTL); err != nil {
		return cfg, err
	}
	if cfg.Stream.WriteTimeout, err = envDuration(getenv, "STREAM_WRITE_TIMEOUT", cfg.Stream.WriteTimeout); err != nil {
		return cfg, err
	}
	if cfg.Stream.KeepAlive, err = envDuration(getenv, "STREAM_KEEPALIVE", cfg.Stream.KeepAlive); err != nil {
		return cfg, err
	}
	if cfg.Stream.Buffer, err = envInt(getenv, "STREAM_BUFFER", cfg.Stream.Buffer); err != nil {
		return cfg, err
	}
	if cfg.JournalWorkers, err = envInt(getenv, "JOURNAL_WORKERS", cfg.JournalWorkers); err != nil {
		return cfg, err
	}
	if cfg.JournalBuffer, err = envInt(getenv, "JOURNAL_BUFFER", cfg.JournalBuffer); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

// envDuration parses key as a Go duration. Zero disables the feature it
// configures.
func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: out of range", key)
	}
	return d, nil
}

// redisOptions accepts either a redis:// URL or an Azure Cache for Redis
// connection string ("host:port,password=...,ssl=True").
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{ServerName: hostOnly(opts.Addr)}
			}
		}
	}
	return opts
}

func hostOnly(addr string) string {
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
