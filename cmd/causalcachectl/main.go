package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	cli := NewCLI()

	if len(os.Args) < 2 {
		printUsage()
		cli.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "kv":
		kvCmd := NewKVCommands(cli)
		kvCmd.Handle(args)
	case "version":
		cli.Printf("causalcachectl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		cli.Printf("Unknown command: %s\n", command)
		printUsage()
		cli.Exit(1)
	}
}

func printUsage() {
	fmt.Println("causalcachectl - causal cache CLI tool")
	fmt.Println()
	fmt.Println("Usage: causalcachectl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  kv get <key>                         SINGLE-consistency read")
	fmt.Println("  kv cross-get <key> [key...]           CROSS-consistency read")
	fmt.Println("  kv put <key> <value> [value...]       write a key (add --cross for CROSS)")
	fmt.Println("  kv gc <client-id>                     release a client's pinned versions")
	fmt.Println()
	fmt.Println("  version                               show version")
	fmt.Println("  help                                  show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --server <url>        causal cache server URL (default: http://localhost:8420)")
	fmt.Println("  --client-id <id>      client id to use for this request (default: random)")
}
