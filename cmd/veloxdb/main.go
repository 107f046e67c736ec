// veloxdb is the operator command of a veloxdb store: it reads and writes
// objects through the graph controller, with the access of a given user or
// as root.
//
//	veloxdb --config veloxdb.yaml --root create User '{"name": "ann"}'
//	veloxdb --config veloxdb.yaml --user u1 list Post --fields title,author.name
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "veloxdb:", err)
		stop()
		os.Exit(1)
	}
}
