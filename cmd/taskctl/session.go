package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/Resized/todo-list/client"
	"github.com/Resized/todo-list/domain"
)

// session is one client's view of the list: the HTTP client, the local
// store it feeds and the coordinator driving both.
type session struct {
	api    *client.API
	store  *client.Store
	coord  *client.Coordinator
	logger *log.Logger
}

func newSession(v *viper.Viper) *session {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.GetLevel())
	api := client.NewAPI(v.GetString("server"), nil)
	store := client.NewStore()
	return &session{
		api:    api,
		store:  store,
		coord:  client.NewCoordinator(api, store, client.WithLogger(logger)),
		logger: logger,
	}
}

// requestContext bounds one-shot commands by the --timeout setting.
func requestContext(parent context.Context, v *viper.Viper) (context.Context, context.CancelFunc) {
	if d := v.GetDuration("timeout"); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

// resolveID accepts a full id or a unique prefix of one in the store.
func (s *session) resolveID(arg string) (string, error) {
	if _, ok := s.store.Get(arg); ok {
		return arg, nil
	}
	var match string
	for _, t := range s.store.All() {
		if !strings.HasPrefix(t.ID, arg) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: id prefix %q is ambiguous", domain.ErrInvalidInput, arg)
		}
		match = t.ID
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, arg)
	}
	return match, nil
}
