// Command genform-repl is an interactive prompt for the text-generation
// model. It loads the model in-process, shows each response on the terminal
// and writes structured TOML records to stdout.
//
// Usage:
//
//	./genform-repl             # interactive, TOML on screen
//	./genform-repl > log.toml  # prompt on screen, TOML to file
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/generate"
	"github.com/Paranoid-AF/genform/notify"
)

const (
	prompt       = "> "
	continuation = ". "
)

func main() {
	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()

	cfg, err := genform.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = genform.DefaultConfig()
	}

	loader := generate.NewLoader(cfg, nil)
	cache := generate.NewCache(loader)
	defer cache.Close()
	responder := generate.NewResponder(cfg, nil)

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "genform repl\r\n")
	fmt.Fprintf(tty, "model: %s\r\n", loader.Model)
	fmt.Fprintf(tty, "\r\nend a line with \\ to continue the prompt on the next line\r\n")
	fmt.Fprintf(tty, "\r\ncommands:\r\n")
	fmt.Fprintf(tty, "  :reload  drop the cached model and load it again\r\n")
	fmt.Fprintf(tty, "  :quit    exit\r\n\r\n")

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)
	screen := ttyNotifier{w: tty}

	cache.Get(context.Background(), screen)

	for {
		text, err := editor.ReadPrompt(prompt, continuation)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		switch strings.TrimSpace(text) {
		case "":
			continue
		case ":quit", ":q":
			return
		case ":reload":
			cache.Invalidate()
			cache.Get(context.Background(), screen)
			continue
		}

		var rec notify.Recorder
		n := notify.Multi{&rec, screen}
		loaded := cache.Get(context.Background(), n)
		outcome := responder.Respond(context.Background(), loaded.Handle, text, n)

		fmt.Fprintf(tty, "%s\r\n", crlf(outcome.Text))
		if outcome.OK() {
			fmt.Fprintf(tty, "(%.2f seconds)\r\n", outcome.Elapsed.Seconds())
		}
		fmt.Fprintf(tty, "\r\n")

		if err := writeEntry(out, newEntry(time.Now(), loaded.Model, text, outcome, rec.Notices())); err != nil {
			fmt.Fprintf(tty, "write error: %v\r\n", err)
		}
	}
}
