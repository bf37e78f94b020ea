// Package askdbctl is the terminal front end: an interactive chat loop over
// a local or remote session, plus API status checks.
package askdbctl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
)

var (
	humanPrompt     = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("AI> ")
	sqlStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	failMark        = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	successMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
)

type ChatOptions struct {
	// Descriptor is used by /connect and, when AutoConnect is set, at start.
	Descriptor  database.Descriptor
	AutoConnect bool
	ShowSQL     bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// Chat runs the read-ask-print loop until /exit or end of input. Failed
// connects and failed questions are reported and the loop continues.
func Chat(ctx context.Context, backend Backend, opts ChatOptions) error {
	stdin := opts.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	turns, err := backend.Transcript(ctx)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	printTurns(stdout, turns)
	_, _ = fmt.Fprintf(stdout, "%s\n\n", dimStyle.Render("Type a question and press Enter. /connect, /history, /exit or Ctrl+D."))

	if opts.AutoConnect {
		connect(ctx, backend, opts.Descriptor, stdout, stderr)
	}

	scanner := bufio.NewScanner(stdin)
	for {
		_, _ = fmt.Fprint(stdout, humanPrompt)
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			_, _ = fmt.Fprintln(stdout)
			return nil
		case "/connect":
			connect(ctx, backend, opts.Descriptor, stdout, stderr)
			continue
		case "/history":
			turns, err := backend.Transcript(ctx)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "  %s %v\n", failMark, err)
				continue
			}
			printTurns(stdout, turns)
			continue
		}

		reply, err := backend.Ask(ctx, input)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "  %s %v\n", failMark, err)
			continue
		}
		if opts.ShowSQL && reply.SQL != "" {
			_, _ = fmt.Fprintf(stdout, "  %s\n", sqlStyle.Render(reply.SQL))
		}
		_, _ = fmt.Fprintf(stdout, "%s%s\n\n", assistantPrompt, reply.Answer)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	_, _ = fmt.Fprintln(stdout)
	return nil
}

func connect(ctx context.Context, backend Backend, descriptor database.Descriptor, stdout, stderr io.Writer) {
	if err := backend.Connect(ctx, descriptor); err != nil {
		_, _ = fmt.Fprintf(stderr, "  %s %v\n", failMark, err)
		return
	}
	_, _ = fmt.Fprintf(stdout, "  %s Connected to %s %s\n\n", successMark, descriptor.Driver, dimStyle.Render(descriptor.Target()))
}

func printTurns(w io.Writer, turns []conversation.Turn) {
	for _, turn := range turns {
		prompt := assistantPrompt
		if turn.Role == conversation.RoleHuman {
			prompt = humanPrompt
		}
		_, _ = fmt.Fprintf(w, "%s%s\n", prompt, turn.Text)
	}
	_, _ = fmt.Fprintln(w)
}
