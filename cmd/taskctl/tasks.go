package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resized/todo-list/client"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := client.Filter(filter)
			if !f.Valid() {
				return fmt.Errorf("unknown filter %q (want all, done or pending)", filter)
			}
			ctx, cancel := requestContext(cmd.Context(), v)
			defer cancel()
			s := newSession(v)
			if err := s.coord.Fetch(ctx); err != nil {
				return err
			}
			s.store.SetFilter(f)
			renderTasks(cmd.OutOrStdout(), s.store.Visible())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(client.FilterAll), "show all, done or pending tasks")
	return cmd
}

func newAddCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "add <content>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd.Context(), v)
			defer cancel()
			task, err := newSession(v).coord.Add(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderTask(cmd.OutOrStdout(), task)
			return nil
		},
	}
}

func newDoneCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task between done and pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd.Context(), v)
			defer cancel()
			s := newSession(v)
			if err := s.coord.Fetch(ctx); err != nil {
				return err
			}
			id, err := s.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := s.coord.ToggleDone(ctx, id); err != nil {
				return err
			}
			task, _ := s.store.Get(id)
			renderTask(cmd.OutOrStdout(), task)
			return nil
		},
	}
}

func newEditCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace a task's content",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd.Context(), v)
			defer cancel()
			s := newSession(v)
			if err := s.coord.Fetch(ctx); err != nil {
				return err
			}
			id, err := s.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := s.coord.Edit(ctx, id, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			task, _ := s.store.Get(id)
			renderTask(cmd.OutOrStdout(), task)
			return nil
		},
	}
}

func newRmCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd.Context(), v)
			defer cancel()
			s := newSession(v)
			if err := s.coord.Fetch(ctx); err != nil {
				return err
			}
			id, err := s.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := s.coord.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", shortID(id))
			return nil
		},
	}
}
