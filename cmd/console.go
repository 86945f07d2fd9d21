package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"Pnode/pkg"
)

// console reads commands until exit or end of input, then signals stop.
func console(c *pkg.Calculator, in io.Reader, out io.Writer, stop chan<- os.Signal) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter command: ")
		if !scanner.Scan() {
			stop <- syscall.SIGTERM
			return
		}
		if !runConsoleCommand(c, strings.Fields(scanner.Text()), out) {
			stop <- syscall.SIGTERM
			return
		}
	}
}

// runConsoleCommand executes one console command and reports whether to keep going.
func runConsoleCommand(c *pkg.Calculator, fields []string, out io.Writer) bool {
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "exit":
		fmt.Fprintln(out, "Exiting...")
		return false
	case "show":
		class := "nodes"
		if len(fields) > 1 {
			class = fields[1]
		}
		switch class {
		case "nodes":
			c.ShowNodes()
		case "links":
			c.ShowLinks()
		default:
			fmt.Fprintln(out, "Invalid class")
		}
	case "validate":
		if err := c.Validate(); err != nil {
			fmt.Fprintln(out, "Validation failed:", err)
		} else {
			fmt.Fprintln(out, "Services running.")
		}
	default:
		fmt.Fprintln(out, "Unknown command:", fields[0])
	}
	return true
}
