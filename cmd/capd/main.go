// Command capd runs a capability registry on this host and serves it over
// HTTP.
//
// Usage:
//
//	capd --manifests /etc/modelcontext/providers.d --cache ~/.cache/capd.db
//	capd --redis redis://localhost:6379/0 --listen :8765 --builtin date,time
//	capd cache list --db ~/.cache/capd.db
//	capd cache show --db ~/.cache/capd.db [--format json|jsonl]
package main

import (
	"fmt"
	"os"
)

func main() {
	closeLog := setupLogging()
	err := newRootCmd().Execute()
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
