package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "run", "run-once":
		return runOnce(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "serve":
		return runServe(args[1:])
	case "registry":
		return runRegistry(args[1:])
	case "sessions":
		return runSessions(args[1:])
	case "alerts":
		return runAlerts(args[1:])
	case "sweep":
		return runSweep(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "tgewatch CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tgewatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  run       Execute one detection cycle and exit")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for run")
	fmt.Fprintln(os.Stderr, "  watch     Run detection cycles on a cron schedule")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo API server")
	fmt.Fprintln(os.Stderr, "  registry  Import, validate, or list companies, keywords, and sources")
	fmt.Fprintln(os.Stderr, "  sessions  List or show monitoring sessions")
	fmt.Fprintln(os.Stderr, "  alerts    List persisted alerts")
	fmt.Fprintln(os.Stderr, "  sweep     Delete fingerprints older than a retention window")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"tgewatch <command> -h\" for command-specific flags.")
}
