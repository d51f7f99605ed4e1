package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const successPrefix = "Token created successfully:"

// isTTY checks if we're running in a terminal
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func succeeded(reply string) bool {
	return strings.HasPrefix(reply, successPrefix)
}

// printReply writes reply with a status marker. Colour is dropped
// automatically when out is not a terminal.
func printReply(out io.Writer, reply string) {
	if succeeded(reply) {
		fmt.Fprintf(out, "%s %s\n", green("✓"), reply)
		return
	}
	fmt.Fprintf(out, "%s %s\n", red("✗"), reply)
}
