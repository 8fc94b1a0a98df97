package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	List(ctx context.Context) error
	Add(ctx context.Context) error
	Edit(ctx context.Context, id string) error
	Upload(ctx context.Context, id, path string) error
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context) error
}

const helpText = `Available commands:
  (l)ist               list items
  add                  add an item
  edit <id>            edit an item
  upload <id> <path>   upload a model file for an item
  delete <id>          delete an item
  watch                follow changes until Enter is pressed
  exit | quit          leave the program`

// runREPL reads commands from reader until EOF or "exit", dispatching to a.
// Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, reader *bufio.Reader) {
	for {
		printlnFn("inv> ")
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "l", "list":
			cmdErr = a.List(ctx)

		case "add":
			cmdErr = a.Add(ctx)

		case "edit":
			if len(args) != 1 {
				printlnFn("usage: edit <id>")
				continue
			}
			cmdErr = a.Edit(ctx, args[0])

		case "upload":
			if len(args) != 2 {
				printlnFn("usage: upload <id> <path>")
				continue
			}
			cmdErr = a.Upload(ctx, args[0], args[1])

		case "delete":
			if len(args) != 1 {
				printlnFn("usage: delete <id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0])

		case "watch":
			cmdErr = a.Watch(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}
