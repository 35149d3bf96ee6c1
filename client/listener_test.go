package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpener struct {
	body     io.ReadCloser
	err      error
	clientID string
}

func (f *fakeOpener) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	return f.body, f.err
}

func (f *fakeOpener) SetClientID(id string) { f.clientID = id }

func TestListenerAppliesRemoteChanges(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected\ndata: {\"clientId\":\"b2\"}\n\n",
		"event: taskCreated\ndata: {\"id\":\"t1\",\"content\":\"buy milk\",\"done\":false,\"date\":\"2024-05-01T12:00:00.000Z\"}\n\n",
		"event: taskCreated\ndata: {\"id\":\"t2\",\"content\":\"walk dog\",\"done\":false,\"date\":\"2024-05-01T12:01:00.000Z\"}\n\n",
		": ping\n\n",
		"event: taskUpdated\ndata: {\"id\":\"t1\",\"content\":\"buy milk\",\"done\":true,\"date\":\"2024-05-01T12:00:00.000Z\"}\n\n",
		"event: taskArchived\ndata: {\"id\":\"t1\"}\n\n",
		"event: taskUpdated\ndata: not json\n\n",
		"event: taskRemoved\ndata: {\"id\":\"t2\"}\n\n",
		"event: taskRemoved\ndata: {\"id\":\"never-seen\"}\n\n",
	}, "")
	opener := &fakeOpener{body: io.NopCloser(strings.NewReader(stream))}
	store := NewStore()
	logger, _ := test.NewNullLogger()

	var connected string
	l := NewListener(opener, store, logger, WithConnectHandler(func(id string) { connected = id }))
	err := l.Run(context.Background())

	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, "b2", opener.clientID)
	assert.Equal(t, "b2", connected)
	require.Equal(t, 1, store.Len())
	t1, ok := store.Get("t1")
	require.True(t, ok)
	assert.True(t, t1.Done)
	assert.Equal(t, "buy milk", t1.Content)
}

func TestListenerDoesNotRetry(t *testing.T) {
	opener := &fakeOpener{err: errors.New("connection refused")}
	logger, _ := test.NewNullLogger()
	err := NewListener(opener, NewStore(), logger).Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestListenerStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	opener := &fakeOpener{body: pr}
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewListener(opener, NewStore(), logger).Run(ctx) }()

	_, err := pw.Write([]byte("event: connected\ndata: {\"clientId\":\"a1\"}\n\n"))
	require.NoError(t, err)
	cancel()
	pw.CloseWithError(context.Canceled)

	assert.NoError(t, <-done)
}
