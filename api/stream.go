package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/broadcast"
)

func streamEvents(reg Registry, cfg StreamConfig, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ch := broadcast.NewChannel(cfg.Buffer)
		id := reg.Register(ch)
		defer reg.Unregister(id)
		entry := logger.WithField("client", id)
		entry.Debug("stream client connected")
		defer entry.Debug("stream client disconnected")

		hello, err := broadcast.ConnectedFrame(id)
		if err != nil {
			return err
		}
		res.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(res.Writer)
		write := func(frame []byte) error {
			if cfg.WriteTimeout > 0 {
				// unsupported by some writers
				_ = rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			}
			if _, err := res.Write(frame); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}
		if err := write(hello); err != nil {
			entry.WithError(err).Debug("stream handshake failed")
			return nil
		}

		var keepAlive <-chan time.Time
		if cfg.KeepAlive > 0 {
			ticker := time.NewTicker(cfg.KeepAlive)
			defer ticker.Stop()
			keepAlive = ticker.C
		}

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ch.Closed():
				entry.Debug("stream dropped by broadcaster")
				return nil
			case frame := <-ch.Frames():
				if err := write(frame); err != nil {
					entry.WithError(err).Warn("stream write failed, disconnecting")
					return nil
				}
			case <-keepAlive:
				if err := write(broadcast.KeepAliveFrame); err != nil {
					entry.WithError(err).Debug("keep-alive write failed")
					return nil
				}
			}
		}
	}
}
