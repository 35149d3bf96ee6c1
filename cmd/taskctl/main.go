package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resized/todo-list/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Settings resolve from flags, then
// TASKCTL_* environment variables, then an optional taskctl.yaml.
func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:          "taskctl",
		Short:        "Work with a shared task list from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v)
		},
	}
	root.PersistentFlags().String("server", client.DefaultBaseURL, "task server base URL")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "timeout for a single request")
	root.PersistentFlags().Bool("debug", false, "log stream and request details")
	for _, name := range []string{"server", "timeout", "debug"} {
		_ = v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}
	v.SetEnvPrefix("taskctl")
	v.AutomaticEnv()

	root.AddCommand(
		newListCmd(v),
		newAddCmd(v),
		newDoneCmd(v),
		newEditCmd(v),
		newRmCmd(v),
		newWatchCmd(v),
	)
	return root
}

func readConfig(v *viper.Viper) error {
	v.SetConfigName("taskctl")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "taskctl"))
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if v.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}
