// Command handshakectl is the operator CLI for the governed execution
// core: one-shot actions, each run in-process against fresh, empty state
// rather than a long-running server. It does not connect to a running
// handshaked.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/cancel"
	"github.com/nuntissura/handshake/pkg/janitor"
	"github.com/nuntissura/handshake/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "janitor":
		return runJanitor(args[2:], stdout, stderr)
	case "cancel":
		return runCancel(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "handshakectl — governed execution core operator CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: handshakectl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  janitor prune [--dry-run]   run a single retention pass")
	fmt.Fprintln(w, "  cancel <key>                request cancellation for a cancel-registry key")
}

// runJanitor runs a one-shot prune pass against a fresh, empty in-process
// store. A process hosting real job/event state (handshaked) runs its own
// Janitor in the background automatically; this subcommand exists for
// operators validating retention policy behavior without standing up the
// full server.
func runJanitor(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "prune" {
		fmt.Fprintln(stderr, "usage: handshakectl janitor prune [--dry-run]")
		return 2
	}

	dryRun := false
	for _, a := range args[1:] {
		if a == "--dry-run" {
			dryRun = true
		}
	}

	jobs := store.NewJobStore()
	fr := store.NewFlightRecorder(30)
	cfg := janitor.DefaultConfig()
	cfg.DryRun = dryRun
	j := janitor.New(jobs, fr, cfg, uuid.New())

	report, err := j.Prune(time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "prune failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "scanned=%d pruned=%d spared_pinned=%d spared_window=%d bytes_freed=%d dry_run=%v\n",
		report.ItemsScanned, report.ItemsPruned, report.ItemsSparedPinned, report.ItemsSparedWindow,
		report.TotalBytesFreed, report.DryRun)
	return 0
}

// runCancel requests cancellation for a key against a fresh registry — a
// demonstration of the CancelToken contract. A deployed handshaked process
// would instead expose this over its own IPC/HTTP surface against its live
// registry; that wiring is deployment-specific and left to the operator.
func runCancel(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: handshakectl cancel <key>")
		return 2
	}

	r := cancel.NewRegistry()
	r.RequestCancel(args[0])
	fmt.Fprintf(stdout, "cancellation requested for key=%s\n", args[0])
	return 0
}
