package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manash/prodstudio/internal/display"
	"github.com/manash/prodstudio/internal/image"
	"github.com/manash/prodstudio/internal/journal"
	"github.com/manash/prodstudio/internal/studio"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	studio    *studio.Session
	loader    *image.Loader
	saver     *image.Saver
	displayer *display.Displayer
	journal   *journal.Manager
	commands  map[string]Command
	running   bool
}

// Config wires the REPL. Journal may be nil when rendering history is disabled.
type Config struct {
	In        io.Reader
	Out       io.Writer
	Err       io.Writer
	Studio    *studio.Session
	Loader    *image.Loader
	Saver     *image.Saver
	Displayer *display.Displayer
	Journal   *journal.Manager
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		studio:    cfg.Studio,
		loader:    cfg.Loader,
		saver:     cfg.Saver,
		displayer: cfg.Displayer,
		journal:   cfg.Journal,
		commands:  make(map[string]Command),
	}
	if r.loader == nil {
		r.loader = image.NewLoader()
	}
	if r.saver == nil {
		r.saver = image.NewSaver()
	}
	if r.displayer == nil {
		r.displayer = display.New(r.out, false)
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "prodstudio interactive mode")
	fmt.Fprintln(r.out, "Upload a product with 'subject <file|url>', then 'generate'.")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	var tags []string
	if r.studio.Subject() != nil {
		tags = append(tags, "subject")
	}
	if r.studio.Reference() != nil {
		tags = append(tags, "ref")
	}
	if r.studio.AutoMode() {
		tags = append(tags, "auto")
	}
	if len(tags) == 0 {
		fmt.Fprint(r.out, "studio> ")
		return
	}
	fmt.Fprintf(r.out, "studio [%s]> ", strings.Join(tags, " "))
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
