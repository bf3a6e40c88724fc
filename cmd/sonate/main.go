package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sonate-labs/sonate/core/pkg/config"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	setupLogging(stderr, cfg.LogLevel)

	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "sign":
		return runSignCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "serve-keys":
		return runServeKeysCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "SONATE Core — signed trust receipts and policy enforcement")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  sonate <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "RECEIPTS:")
	printCommand(w, "keygen", "Generate an Ed25519 signing seed and public key")
	printCommand(w, "sign", "Build and sign a receipt (--in, --prev, --seed, --save)")
	printCommand(w, "verify", "Verify a signed receipt (--receipt, --pubkey, --json)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "POLICY:")
	printCommand(w, "evaluate", "Evaluate receipts against a policy file (--policy, --receipt)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "KEYS:")
	printCommand(w, "serve-keys", "Serve the verification key over HTTP (--addr)")
	fmt.Fprintln(w, "")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, desc)
}
