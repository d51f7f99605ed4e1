package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// runOnce handles a single command and prints the outcome.
func (a *app) runOnce(ctx context.Context, out io.Writer, text string) error {
	reply := a.invoke(ctx, text)
	printReply(out, reply)
	if !succeeded(reply) {
		return errLaunchFailed
	}
	return nil
}

var errLaunchFailed = errors.New("token was not created")

// runInteractive runs a line loop with readline editing until exit or EOF.
func (a *app) runInteractive(ctx context.Context) error {
	fmt.Println(bold("pumpkit " + version))
	fmt.Println("Describe the token and press Enter. Type 'exit' or 'quit' to quit.")
	fmt.Println(gray("Example: Create token with name Yongi, ticker YNG, description best coin, image QmAB"))
	fmt.Println()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		UniqueEditLine:  true,

		Stdin:  readline.NewCancelableStdin(os.Stdin),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println("\nGoodbye!")
				return nil
			}
			continue
		} else if err == io.EOF {
			fmt.Println("\nGoodbye!")
			return nil
		} else if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if isExit(input) {
			fmt.Println("Goodbye!")
			return nil
		}
		if input == "" {
			continue
		}

		fmt.Println(gray("Launching..."))
		printReply(os.Stdout, a.invoke(ctx, input))
		fmt.Println()
	}
}

// runPiped treats every non-empty line of in as a separate command.
func (a *app) runPiped(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	failed := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			break
		}
		reply := a.invoke(ctx, line)
		printReply(out, reply)
		if !succeeded(reply) {
			failed++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%w (%d failed)", errLaunchFailed, failed)
	}
	return nil
}

func isExit(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		return true
	}
	return false
}
