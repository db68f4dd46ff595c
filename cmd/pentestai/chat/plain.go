package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pentestai/pentestai/cmd/pentestai/render"
	"github.com/pentestai/pentestai/pkg/client"
)

// runPlain is the line-oriented chat used when there is no terminal.
func runPlain(ctx context.Context, in io.Reader, out io.Writer, session *client.Session, r *render.Renderer, save func(string)) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastFailed string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cmd, arg, _ := strings.Cut(line[1:], " ")
			switch cmd {
			case "quit", "exit":
				return nil
			case "models":
				for _, m := range session.Models() {
					marker := " "
					if m.ID == session.Model() {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s\t%s\n", marker, m.ID, m.Name)
				}
			case "model":
				key := strings.TrimSpace(arg)
				if err := session.SetModel(key); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
					continue
				}
				save(key)
				fmt.Fprintf(out, "Using %s\n", displayName(key, session.Models()))
			case "retry":
				if lastFailed == "" {
					fmt.Fprintln(out, "! nothing to retry")
					continue
				}
				entry, err := session.Retry(ctx, lastFailed)
				if err := printResult(out, r, entry, err); err != nil {
					return err
				}
				if entry.Sender != client.SenderError {
					lastFailed = ""
				}
			default:
				fmt.Fprintf(out, "! unknown command /%s\n", cmd)
			}
			continue
		}

		entry, err := session.Submit(ctx, line)
		if err := printResult(out, r, entry, err); err != nil {
			return err
		}
		if entry.Sender == client.SenderError {
			lastFailed = entry.Retry
		} else {
			lastFailed = ""
		}
	}
	return scanner.Err()
}

// printResult prints a reply or error entry. It only returns an error when
// the session could not send at all, e.g. because ctx was cancelled.
func printResult(out io.Writer, r *render.Renderer, entry client.Entry, err error) error {
	switch entry.Sender {
	case client.SenderBot:
		name := ""
		if entry.Model != nil {
			name = entry.Model.DisplayName
		}
		if entry.Fallback {
			name += ", canned reply"
		}
		fmt.Fprintf(out, "[%s]\n%s", name, r.Markdown(entry.Text))
		return nil
	case client.SenderError:
		fmt.Fprintf(out, "! %s\n! %s Type /retry to try again.\n", render.Sanitize(entry.Text), entry.Category.Hint())
		return nil
	}
	if err != nil && !errors.Is(err, client.ErrEmptyMessage) {
		return err
	}
	return nil
}
