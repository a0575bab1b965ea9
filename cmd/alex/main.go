// Command alex queries the OpenAlex catalog from the shell.
//
//	alex works --filter publication_year=2020 --sort cited_by_count=desc --per-page 5
//	alex authors A5023888391 -o json
//	alex institutions --search michigan --all --n-max 500
//	alex autocomplete --entity authors einstein
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
