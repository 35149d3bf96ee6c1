package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resized/todo-list/client"
	"github.com/Resized/todo-list/domain"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	var (
		filter    string
		reconnect bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the list live as other clients change it",
		Long: `Loads the list, then applies every change pushed by the server and
reprints the list. With --reconnect a lost stream is re-opened with
exponential backoff and the list is reloaded to catch up on missed changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := client.Filter(filter)
			if !f.Valid() {
				return fmt.Errorf("unknown filter %q (want all, done or pending)", filter)
			}
			s := newSession(v)
			s.store.SetFilter(f)
			return watch(cmd, s, reconnect)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(client.FilterAll), "show all, done or pending tasks")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "re-open the stream when it drops")
	return cmd
}

func watch(cmd *cobra.Command, s *session, reconnect bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	view := &listView{out: out}
	unsubscribe := s.store.Subscribe(func() {
		// a reload reports its result once fetching ends
		if !s.store.IsFetching() {
			view.draw(s.store.Visible())
		}
	})
	defer unsubscribe()
	defer s.store.Close()

	var connected atomic.Bool
	listener := client.NewListener(s.api, s.store, s.logger, client.WithConnectHandler(func(id string) {
		connected.Store(true)
		s.logger.WithField("client", id).Info("watching")
		// reload on every connect so changes missed while offline show up
		if err := s.coord.Fetch(ctx); err == nil {
			view.draw(s.store.Visible())
		}
	}))

	delay := minReconnectDelay
	for {
		connected.Store(false)
		err := listener.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !reconnect {
			return err
		}
		if connected.Load() {
			delay = minReconnectDelay
		}
		s.logger.WithError(err).WithField("retry_in", delay).Warn("event stream lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// listView reprints the list only when the visible tasks differ from the
// last print. Store notifications for pending flags leave it unchanged.
type listView struct {
	out io.Writer

	mu    sync.Mutex
	drawn bool
	last  string
}

func (v *listView) draw(tasks []domain.Task) bool {
	key := fingerprint(tasks)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drawn && key == v.last {
		return false
	}
	v.drawn, v.last = true, key
	fmt.Fprintln(v.out, mutedStyle.Render("--- "+time.Now().Format("15:04:05")))
	renderTasks(v.out, tasks)
	return true
}

func fingerprint(tasks []domain.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s\x00%s\x00%t\x00%s\n", t.ID, t.Content, t.Done, t.CreatedAt)
	}
	return b.String()
}
