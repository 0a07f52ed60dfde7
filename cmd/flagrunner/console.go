package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// console asks the operator on the terminal. It confirms flag candidates and
// answers the runner's questions.
type console struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
	err   error
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out}
}

func (c *console) start() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		c.err = scanner.Err()
	}()
}

func (c *console) readLine(ctx context.Context) (string, error) {
	c.once.Do(c.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.err != nil {
				return "", c.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// Ask prints prompt and returns the next line typed by the operator.
func (c *console) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintf(c.out, "\n%s\n> ", strings.TrimSpace(prompt))
	return c.readLine(ctx)
}

// Confirm asks whether candidate is the correct flag.
func (c *console) Confirm(ctx context.Context, candidate string) (bool, error) {
	for {
		fmt.Fprintf(c.out, "\nPotential flag: %s\nIs this the correct flag? [y/n]: ", candidate)
		line, err := c.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(c.out, "Please answer y or n.")
	}
}
