package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

// ErrStreamClosed is returned by Listener.Run when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

type streamOpener interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
	SetClientID(id string)
}

// Listener applies remote changes from the event stream to a Store.
type Listener struct {
	api       streamOpener
	store     *Store
	logger    *log.Logger
	onConnect func(clientID string)
}

// ListenerOption customizes a Listener.
type ListenerOption func(*Listener)

// WithConnectHandler runs fn after the handshake assigned a client id.
func WithConnectHandler(fn func(clientID string)) ListenerOption {
	return func(l *Listener) { l.onConnect = fn }
}

func NewListener(api streamOpener, store *Store, logger *log.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = log.StandardLogger()
	}
	l := &Listener{api: api, store: store, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes one stream connection until ctx is done or the connection
// fails. It never reconnects; a nil error means ctx was cancelled.
func (l *Listener) Run(ctx context.Context) error {
	body, err := l.api.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer body.Close()

	dec := NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			l.logger.WithError(err).Warn("event stream failed")
			return err
		}
		l.apply(ev)
	}
}

func (l *Listener) apply(ev Event) {
	entry := l.logger.WithField("event", ev.Name)
	if ev.Name == domain.EventConnected {
		var hello domain.ConnectedData
		if err := sonic.Unmarshal(ev.Data, &hello); err != nil || hello.ClientID == "" {
			entry.WithError(err).Warn("malformed stream handshake")
			return
		}
		l.api.SetClientID(hello.ClientID)
		entry.WithField("client", hello.ClientID).Debug("event stream connected")
		if l.onConnect != nil {
			l.onConnect(hello.ClientID)
		}
		return
	}

	kind, ok := domain.KindForStreamName(ev.Name)
	if !ok {
		entry.Debug("ignoring unknown event")
		return
	}
	switch kind {
	case domain.TaskCreated, domain.TaskUpdated:
		var task domain.Task
		if err := sonic.Unmarshal(ev.Data, &task); err != nil || task.ID == "" {
			entry.WithError(err).Warn("malformed task payload")
			return
		}
		l.store.UpsertOne(task)
	case domain.TaskRemoved:
		var removed domain.RemovedData
		if err := sonic.Unmarshal(ev.Data, &removed); err != nil || removed.ID == "" {
			entry.WithError(err).Warn("malformed removal payload")
			return
		}
		l.store.RemoveOne(removed.ID)
	}
}
