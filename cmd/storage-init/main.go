package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

// storage-init provisions the tasks table and the change queue. It is safe
// to run repeatedly.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	tasksTable := os.Getenv("TASKS_TABLE")
	if tasksTable == "" {
		log.Fatal("missing TASKS_TABLE")
	}
	changeQueue := os.Getenv("CHANGE_QUEUE")

	attempts := 10
	if v := os.Getenv("STORAGE_INIT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid STORAGE_INIT_ATTEMPTS: %q", v)
		}
		attempts = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.WithFields(log.Fields{"table": tasksTable, "queue": changeQueue}).Info("storage init starting")
	err := retry(ctx, attempts, func() error {
		if err := createTable(ctx, connStr, tasksTable); err != nil {
			return err
		}
		if changeQueue == "" {
			return nil
		}
		return createQueue(ctx, connStr, changeQueue)
	})
	if err != nil {
		log.Fatalf("storage init: %v", err)
	}
	log.Info("storage init complete")
}

// retry runs fn until it succeeds, doubling the pause between attempts so the
// storage emulator has time to come up.
func retry(ctx context.Context, attempts int, fn func() error) error {
	delay := 500 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", i).Warn("storage not ready")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 8*time.Second {
			delay *= 2
		}
	}
	return err
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil {
		if hasErrorCode(err, string(aztables.TableAlreadyExists)) {
			log.WithField("table", name).Debug("table already exists")
			return nil
		}
		return err
	}
	log.WithField("table", name).Info("table created")
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil {
		if hasErrorCode(err, queueAlreadyExists) {
			log.WithField("queue", name).Debug("queue already exists")
			return nil
		}
		return err
	}
	log.WithField("queue", name).Info("queue created")
	return nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
