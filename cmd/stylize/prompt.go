package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/config"
)

// prompter asks for run settings on a terminal.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask prints label and returns the next trimmed line.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// askPath asks until the answer names an existing file, or equals one of
// the accepted sentinels.
func (p *prompter) askPath(label string, sentinels ...string) (string, error) {
	answer, err := p.ask(label)
	for err == nil {
		for _, s := range sentinels {
			if answer == s {
				return answer, nil
			}
		}
		if isFile(answer) {
			return answer, nil
		}
		answer, err = p.ask("E: Image not found. " + label)
	}
	return "", err
}

// askInt asks until the answer is a non-negative integer.
func (p *prompter) askInt(label string) (int, error) {
	answer, err := p.ask(label)
	for err == nil {
		if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 0 {
			return n, nil
		}
		answer, err = p.ask("E: Not a number. " + label)
	}
	return 0, err
}

// complete asks for every setting the command line left open: image size,
// style, content and input images, and the step count. Paths are asked
// again while the file does not exist.
func (p *prompter) complete(cfg *config.Config, set map[string]bool) error {
	var err error
	if !set["size"] {
		if cfg.Size, err = p.askInt("Image Size"); err != nil {
			return err
		}
	}
	if cfg.Style == "" || !isFile(cfg.Style) {
		if cfg.Style, err = p.askPath("Path to Style"); err != nil {
			return err
		}
	}
	if cfg.Content == "" || !isFile(cfg.Content) {
		if cfg.Content, err = p.askPath("Path to Content"); err != nil {
			return err
		}
	}
	if !set["input"] {
		if cfg.Input, err = p.askPath("Input Image Path or 'noise'", config.NoiseInput); err != nil {
			return err
		}
	}
	if !set["steps"] {
		if cfg.Steps, err = p.askInt("Number of Steps"); err != nil {
			return err
		}
	}
	return nil
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// errMissingImage is returned outside interactive mode when an image path
// is not set.
var errMissingImage = errors.New("missing image path")
