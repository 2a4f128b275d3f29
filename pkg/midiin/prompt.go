package midiin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrPromptClosed is returned when input ends before a port was opened
var ErrPromptClosed = errors.New("midiin: no port selected")

// PrintPorts writes the numbered port list
func PrintPorts(w io.Writer, ports []Port) {
	fmt.Fprintln(w, "Available MIDI ports:")
	for _, p := range ports {
		fmt.Fprintf(w, "%d: %s\n", p.Number, p.Name)
	}
}

// Prompt asks the operator for one or more port numbers (comma separated)
// and calls open for each. It asks again on invalid input or when no
// selected port could be opened, and gives up when ctx is done.
func Prompt(ctx context.Context, r io.Reader, w io.Writer, ports []Port, open func(Port) error) ([]Port, error) {
	PrintPorts(w, ports)

	stop := make(chan struct{})
	defer close(stop)
	lines, errc := readLines(r, stop)
	for {
		fmt.Fprint(w, "Select MIDI port number(s): ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil, ctx.Err()
		case err := <-errc:
			if err != nil {
				return nil, fmt.Errorf("read selection: %w", err)
			}
			return nil, ErrPromptClosed
		case line = <-lines:
		}

		selected, err := parseSelection(line, ports)
		if err != nil {
			fmt.Fprintln(w, "Please enter a valid number.")
			continue
		}

		var opened []Port
		for _, p := range selected {
			if err := open(p); err != nil {
				fmt.Fprintf(w, "Error opening port %d: %v\n", p.Number, err)
				continue
			}
			fmt.Fprintf(w, "Opened MIDI port: %s\n", p.Name)
			opened = append(opened, p)
		}
		if len(opened) > 0 {
			return opened, nil
		}
		fmt.Fprintln(w, "Please try another port.")
	}
}

// readLines scans r in the background until it ends or stop is closed.
// errc receives the scanner error, or nil at end of input.
func readLines(r io.Reader, stop <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func parseSelection(line string, ports []Port) ([]Port, error) {
	var selected []Port
	seen := make(map[int]bool)
	for _, field := range strings.Split(line, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		p, err := Resolve(ports, strconv.Itoa(n))
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			selected = append(selected, p)
		}
	}
	return selected, nil
}
