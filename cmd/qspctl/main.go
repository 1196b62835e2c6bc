package main

import (
	"flag"
	"fmt"
	"os"

	pkgversion "github.com/qsproto/qsp-core/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand()
	case "bench":
		benchCommand()
	case "version":
		fmt.Printf("qspctl version %s\n", getVersion())
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`qspctl - post-quantum secure messaging core: demo & benchmark tool

USAGE:
    qspctl <command> [options]

COMMANDS:
    demo      Run a handshake and message exchange walkthrough (Suite-2 reseed with --suite2)
    bench     Benchmark handshake and encrypt/decrypt latency
    version   Print version information
    help      Show this help message

Run 'qspctl <command> --help' for more information on a command.

EXAMPLES:
    # Walk through a handshake and a few encrypted messages
    qspctl demo --verbose

    # Also upgrade to Suite-2 and run a boundary reseed
    qspctl demo --suite2

    # Benchmark 100 handshakes and 1000 message round trips
    qspctl bench --handshakes 100 --messages 1000

PROJECT:
    qsp-core - hybrid classical/post-quantum double-ratchet messaging core
    https://github.com/qsproto/qsp-core

    Handshake: X25519 + ML-KEM-768, Ed25519 + ML-DSA-65 signing
    Ratchet:   header-encrypted double ratchet with optional per-message PQ mixing
    Suite-2:   Supplemental Chain Key Advance for boundary PQ rekeying`)
}

func demoCommand() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Print each handshake and ratchet step")
	suite2 := fs.Bool("suite2", false, "Also upgrade to Suite-2 and run a boundary reseed")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error, silent")
	logFormat := fs.String("log-format", "text", "Log format: text or json")

	fs.Usage = func() {
		fmt.Println(`USAGE: qspctl demo [options]

Run a complete in-process handshake between two identities, exchange a few
encrypted messages in both directions, snapshot and restore a session, and
optionally upgrade to Suite-2 and perform a boundary PQ reseed.

OPTIONS:`)
		fs.PrintDefaults()
	}

	_ = fs.Parse(os.Args[2:])

	runDemo(*verbose, *suite2, *logLevel, *logFormat)
}

func benchCommand() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	handshakes := fs.Int("handshakes", 50, "Number of handshakes to benchmark")
	messages := fs.Int("messages", 1000, "Number of encrypt/decrypt round trips to benchmark")

	fs.Usage = func() {
		fmt.Println(`USAGE: qspctl bench [options]

Benchmark handshake and encrypt/decrypt latency against an established
session, reporting percentiles via the telemetry histogram summaries.

OPTIONS:`)
		fs.PrintDefaults()
	}

	_ = fs.Parse(os.Args[2:])

	runBench(*handshakes, *messages)
}
