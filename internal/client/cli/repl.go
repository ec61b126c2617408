package cli

import (
	"bufio"
	"context"
	"fmt"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Stats(ctx context.Context) error
	Clear(ctx context.Context) error
}

const helpText = `Available commands:
  (l)ist <table>                      list tenders, suppliers or expenses
  show <table> <id>                   show one record
  add <table> name=value ...          create a record
  update <table> <id> name=value ...  change fields of a record
  delete <table> <id>                 delete a record
  sync                                replay pending changes now
  stats                               cached rows and pending changes
  clear                               wipe all local data
  exit | quit                         leave the program`

// runREPL reads commands from scanner until EOF, "exit" or "quit", and
// dispatches them to a. statusFn feeds the prompt. Errors from handlers are
// printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("crm (%s)> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := splitArgs(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "l", "list":
			err = a.List(ctx, args)
		case "show":
			err = a.Show(ctx, args)
		case "add":
			err = a.Add(ctx, args)
		case "update", "edit":
			err = a.Update(ctx, args)
		case "delete", "rm":
			err = a.Delete(ctx, args)
		case "sync":
			err = a.Sync(ctx)
		case "stats":
			err = a.Stats(ctx)
		case "clear":
			err = a.Clear(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
