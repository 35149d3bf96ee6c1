package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resized/todo-list/api"
	"github.com/Resized/todo-list/broadcast"
	"github.com/Resized/todo-list/domain"
	"github.com/Resized/todo-list/storage"
)

type peer struct {
	api   *API
	store *Store
	coord *Coordinator
}

func startPeer(t *testing.T, ctx context.Context, baseURL string) *peer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := &peer{api: NewAPI(baseURL, nil), store: NewStore()}
	p.coord = NewCoordinator(p.api, p.store, WithLogger(logger))
	require.NoError(t, p.coord.Fetch(ctx))
	go func() { _ = NewListener(p.api, p.store, logger).Run(ctx) }()
	require.Eventually(t, func() bool { return p.api.ClientID() != "" }, 2*time.Second, 10*time.Millisecond)
	return p
}

func TestClientsConverge(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reg := broadcast.NewRegistry()
	e := echo.New()
	api.Register(e, domain.NewTaskService(storage.NewMemory(), broadcast.NewBroadcaster(reg, logger), logger), reg, api.StreamConfig{}, logger)
	srv := httptest.NewServer(e)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		reg.Close()
		srv.Close()
	})

	a := startPeer(t, ctx, srv.URL+"/api")
	b := startPeer(t, ctx, srv.URL)
	assert.NotEqual(t, a.api.ClientID(), b.api.ClientID())

	created, err := a.coord.Add(ctx, "buy milk")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		got, ok := b.store.Get(created.ID)
		return ok && got.Equal(created)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.coord.ToggleDone(ctx, created.ID))
	assert.Eventually(t, func() bool {
		got, ok := a.store.Get(created.ID)
		return ok && got.Done
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.coord.Edit(ctx, created.ID, "buy oat milk"))
	assert.Eventually(t, func() bool {
		got, _ := b.store.Get(created.ID)
		return got.Content == "buy oat milk"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.coord.Delete(ctx, created.ID))
	assert.Eventually(t, func() bool {
		_, ok := b.store.Get(created.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, ids(a.store.All()), ids(b.store.All()))
}

func TestAPIErrorsMapToDomainErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := echo.New()
	api.Register(e, domain.NewTaskService(storage.NewMemory(), nil, logger), broadcast.NewRegistry(), api.StreamConfig{}, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	c := NewAPI(srv.URL, nil)
	ctx := context.Background()

	_, err := c.Delete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Task not found", apiErr.Message)

	_, err = c.Create(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No content provided", apiErr.Message)

	tasks, err := c.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}
