package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ErrInputTerminated is returned when input ends before an answer is given.
var ErrInputTerminated = errors.New("input terminated")

// Prompter asks the operator questions on a terminal.
type Prompter struct {
	writer io.Writer
	reader *NonBlockingReader
}

// NewCLIPrompter creates a new CLI prompter with the given reader and writer.
func NewCLIPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprintf(p.writer, "%s", FormatPrompt(question+" [y/N]")); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	answer, err := p.reader.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, ErrInputTerminated
		}
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose lists options and returns the index of the one picked, asking again
// until a listed number is entered.
func (p *Prompter) Choose(ctx context.Context, question string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to choose from")
	}

	if _, err := fmt.Fprintln(p.writer, BoldStyle.Render(question)); err != nil {
		return 0, fmt.Errorf("failed to write prompt: %w", err)
	}
	for i, option := range options {
		if _, err := fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, option); err != nil {
			return 0, fmt.Errorf("failed to write option: %w", err)
		}
	}

	for {
		if _, err := fmt.Fprintf(p.writer, "%s", FormatPrompt("Choice")); err != nil {
			return 0, fmt.Errorf("failed to write prompt: %w", err)
		}

		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, ErrInputTerminated
			}
			return 0, err
		}

		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}
