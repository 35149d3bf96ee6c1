package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Resized/todo-list/broadcast"
	"github.com/Resized/todo-list/domain"
	"github.com/Resized/todo-list/storage"
)

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

type sseFrame struct {
	event string
	data  string
}

type sseConn struct {
	resp   *http.Response
	frames chan sseFrame
	lines  chan string
}

func fixedIDs(ids ...string) broadcast.RegistryOption {
	var mu sync.Mutex
	return broadcast.WithIDSource(func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return ""
		}
		id := ids[0]
		ids = ids[1:]
		return id
	})
}

func openStream(t *testing.T, url string) *sseConn {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	conn := &sseConn{resp: resp, frames: make(chan sseFrame, 16), lines: make(chan string, 64)}
	go func() {
		defer close(conn.frames)
		reader := bufio.NewReader(resp.Body)
		var cur sseFrame
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			select {
			case conn.lines <- line:
			default:
			}
			switch {
			case line == "":
				if cur.event != "" {
					conn.frames <- cur
				}
				cur = sseFrame{}
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	t.Cleanup(func() { _ = resp.Body.Close() })
	return conn
}

func (s *sseConn) next(t *testing.T) sseFrame {
	t.Helper()
	select {
	case f, ok := <-s.frames:
		if !ok {
			t.Fatal("stream closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return sseFrame{}
}

func mutate(t *testing.T, method, url, body, clientID string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if clientID != "" {
		req.Header.Set(HeaderClientID, clientID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("%s %s: status %d", method, url, resp.StatusCode)
	}
}

func startServer(t *testing.T, st domain.TaskStore, cfg StreamConfig, opts ...broadcast.RegistryOption) (*httptest.Server, *broadcast.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := broadcast.NewRegistry(opts...)
	bc := broadcast.NewBroadcaster(reg, logger)
	e := echo.New()
	Register(e, domain.NewTaskService(st, bc, logger), reg, cfg, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return srv, reg
}

func TestStreamExcludesOriginator(t *testing.T) {
	st := storage.NewMemory()
	srv, _ := startServer(t, st, StreamConfig{Buffer: 8}, fixedIDs("a1", "b2"))

	a := openStream(t, srv.URL+"/tasks/events")
	if f := a.next(t); f.event != domain.EventConnected || f.data != `{"clientId":"a1"}` {
		t.Fatalf("unexpected handshake for a: %+v", f)
	}
	b := openStream(t, srv.URL+"/api/tasks/events")
	if f := b.next(t); f.event != domain.EventConnected || f.data != `{"clientId":"b2"}` {
		t.Fatalf("unexpected handshake for b: %+v", f)
	}

	mutate(t, http.MethodPost, srv.URL+"/tasks", `{"content":"buy milk"}`, "a1")
	created := b.next(t)
	if created.event != domain.EventTaskCreated || !strings.Contains(created.data, `"content":"buy milk"`) {
		t.Fatalf("unexpected frame for b: %+v", created)
	}

	tasks, _ := st.List(context.Background())
	id := tasks[0].ID

	// a must skip its own create; its next frame is b's update
	mutate(t, http.MethodPatch, srv.URL+"/tasks/"+id, `{"done":true}`, "b2")
	updated := a.next(t)
	if updated.event != domain.EventTaskUpdated || !strings.Contains(updated.data, `"done":true`) {
		t.Fatalf("expected a to receive b's update first, got %+v", updated)
	}

	mutate(t, http.MethodDelete, srv.URL+"/tasks/"+id, "", "")
	for _, conn := range []*sseConn{a, b} {
		f := conn.next(t)
		if f.event != domain.EventTaskRemoved || f.data != `{"id":"`+id+`"}` {
			t.Fatalf("unexpected removal frame: %+v", f)
		}
	}
}

func TestStreamUnregistersOnDisconnect(t *testing.T) {
	srv, reg := startServer(t, storage.NewMemory(), StreamConfig{})

	conn := openStream(t, srv.URL+"/tasks/events")
	conn.next(t)
	if reg.Len() != 1 {
		t.Fatalf("expected 1 registered client, got %d", reg.Len())
	}
	_ = conn.resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after disconnect: %d", reg.Len())
		}
		// the handler notices the dead peer on its next write
		mutate(t, http.MethodPost, srv.URL+"/tasks", `{"content":"ping"}`, "")
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStreamSendsKeepAlive(t *testing.T) {
	srv, _ := startServer(t, storage.NewMemory(), StreamConfig{KeepAlive: 20 * time.Millisecond})
	conn := openStream(t, srv.URL+"/tasks/events")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-conn.lines:
			if line == ": ping" {
				return
			}
		case <-deadline:
			t.Fatal("no keep-alive comment received")
		}
	}
}

func TestStreamEndsWhenDroppedByBroadcaster(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reg := broadcast.NewRegistry(fixedIDs("slow"))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/tasks/events", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)
	handler := streamEvents(reg, StreamConfig{}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- handler(c) }()

	deadline := time.Now().Add(time.Second)
	for reg.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	reg.Unregister("slow")

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after unregister")
	}
	if got := rec.Body.String(); got != "event: connected\ndata: {\"clientId\":\"slow\"}\n\n" {
		t.Fatalf("unexpected body %q", got)
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatal("expected proxy buffering to be disabled")
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	reg := broadcast.NewRegistry()
	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/tasks/events", nil).WithContext(ctx)
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- streamEvents(reg, StreamConfig{}, log.New())(c) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after cancel")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected client to be unregistered, got %d", reg.Len())
	}
}
