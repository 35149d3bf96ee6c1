package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/client"
	"github.com/Resized/todo-list/domain"
)

const maxFailureRate = 0.01

type loadConfig struct {
	BaseURL     string
	Connections int
	Duration    time.Duration
	WriteEvery  time.Duration
}

type report struct {
	Mutations uint64
	Events    uint64
	Attempts  uint64
	Failures  uint64
	// Echoes counts change events delivered back to the writer's own stream.
	Echoes uint64
	// Starved counts listener streams that received no change at all.
	Starved int
}

func (r report) Check() error {
	switch {
	case r.Mutations == 0:
		return errors.New("writer made no changes")
	case r.Events == 0:
		return errors.New("no events received")
	case r.Echoes > 0:
		return fmt.Errorf("writer received %d of its own changes", r.Echoes)
	case r.Starved > 0:
		return fmt.Errorf("%d streams received no changes", r.Starved)
	case r.Attempts > 0 && float64(r.Failures)/float64(r.Attempts) > maxFailureRate:
		return fmt.Errorf("connection failure rate %d/%d", r.Failures, r.Attempts)
	}
	return nil
}

func runLoad(ctx context.Context, cfg loadConfig, logger *log.Logger) report {
	var (
		rep  report
		wg   sync.WaitGroup
		seen = make([]atomic.Uint64, cfg.Connections)
	)
	ready := make(chan struct{}, cfg.Connections+1)

	wg.Add(cfg.Connections)
	for i := range cfg.Connections {
		go func() {
			defer wg.Done()
			listen(ctx, client.NewAPI(cfg.BaseURL, nil), &rep, ready, func() {
				atomic.AddUint64(&rep.Events, 1)
				seen[i].Add(1)
			})
		}()
	}

	writer := client.NewAPI(cfg.BaseURL, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		listen(ctx, writer, &rep, ready, func() { atomic.AddUint64(&rep.Echoes, 1) })
	}()

	for range cfg.Connections + 1 {
		select {
		case <-ready:
		case <-ctx.Done():
		}
	}
	write(ctx, writer, cfg.WriteEvery, &rep, logger)
	wg.Wait()

	for i := range seen {
		if seen[i].Load() == 0 {
			rep.Starved++
		}
	}
	return rep
}

// listen keeps one stream open until ctx ends, reconnecting with backoff.
// ready is signalled after the first handshake.
func listen(ctx context.Context, api *client.API, rep *report, ready chan<- struct{}, onChange func()) {
	backoff := time.Second
	signalled := false
	for ctx.Err() == nil {
		atomic.AddUint64(&rep.Attempts, 1)
		body, err := api.OpenStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			atomic.AddUint64(&rep.Failures, 1)
			sleep(ctx, backoff)
			backoff = min(backoff*2, 5*time.Second)
			continue
		}
		backoff = time.Second
		dec := client.NewDecoder(body)
		for {
			ev, err := dec.Next()
			if err != nil {
				break
			}
			if ev.Name == domain.EventConnected {
				var hello domain.ConnectedData
				if err := sonic.Unmarshal(ev.Data, &hello); err == nil {
					api.SetClientID(hello.ClientID)
				}
				if !signalled {
					signalled = true
					ready <- struct{}{}
				}
				continue
			}
			if _, ok := domain.KindForStreamName(ev.Name); ok {
				onChange()
			}
		}
		body.Close()
		if ctx.Err() != nil {
			return
		}
		atomic.AddUint64(&rep.Failures, 1)
		sleep(ctx, backoff)
	}
}

// write cycles create, toggle and delete until ctx ends. The writer's client
// id is set by its own stream handshake, so its changes exclude it.
func write(ctx context.Context, api *client.API, every time.Duration, rep *report, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var last string
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var err error
		switch {
		case last == "":
			var t domain.Task
			t, err = api.Create(ctx, fmt.Sprintf("load task %d", n))
			last = t.ID
		case n%3 == 1:
			done := true
			_, err = api.Update(ctx, last, domain.TaskPatch{Done: &done})
		default:
			_, err = api.Delete(ctx, last)
			last = ""
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("writer mutation failed")
			continue
		}
		atomic.AddUint64(&rep.Mutations, 1)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
