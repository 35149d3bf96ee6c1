package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Resized/todo-list/domain"
)

const shortIDLen = 8

var (
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle  = lipgloss.NewStyle().Faint(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func renderTask(w io.Writer, t domain.Task) {
	mark, content := "[ ]", t.Content
	if t.Done {
		mark, content = "[x]", doneStyle.Render(t.Content)
	}
	fmt.Fprintf(w, "%s %s  %s  %s\n",
		mark,
		idStyle.Render(shortID(t.ID)),
		content,
		mutedStyle.Render(t.CreatedAt.Local().Format("2006-01-02 15:04")),
	)
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No tasks."))
		return
	}
	for _, t := range tasks {
		renderTask(w, t)
	}
}
