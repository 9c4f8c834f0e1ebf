package main

import (
	"flag"
	"strings"

	"github.com/google/uuid"
)

// KVCommands handles get/put/gc subcommands against the cache's
// client-facing surface.
type KVCommands struct {
	cli *CLI
}

// NewKVCommands creates a new KV commands handler
func NewKVCommands(cli *CLI) *KVCommands {
	return &KVCommands{cli: cli}
}

// Handle routes kv subcommands
func (k *KVCommands) Handle(args []string) {
	if len(args) == 0 {
		k.cli.Errorln("kv subcommand required")
		k.cli.Errorln("Usage: causalcachectl kv <get|cross-get|put|gc> [options]")
		k.cli.Exit(1)
		return
	}

	subcommand := args[0]
	subArgs := args[1:]

	switch subcommand {
	case "get":
		k.Get(subArgs)
	case "cross-get":
		k.CrossGet(subArgs)
	case "put":
		k.Put(subArgs)
	case "gc":
		k.GC(subArgs)
	default:
		k.cli.Errorf("Unknown kv subcommand: %s\n", subcommand)
		k.cli.Errorln("Available: get, cross-get, put, gc")
		k.cli.Exit(1)
	}
}

func (k *KVCommands) clientID(config *GlobalConfig) string {
	if config.ClientID != "" {
		return config.ClientID
	}
	return uuid.NewString()
}

// Get performs a SINGLE-consistency read.
func (k *KVCommands) Get(args []string) {
	config, remaining, err := k.cli.ParseGlobalFlags(args, "get")
	if err == flag.ErrHelp {
		k.cli.Println("Usage: causalcachectl kv get <key> [options]")
		return
	}
	k.cli.HandleError(err, "parsing flags")
	k.cli.ValidateArgs(remaining, 1, 1, "Usage: causalcachectl kv get <key>")

	client := k.cli.CreateClient(config)
	resp, err := client.GetSingle(k.clientID(config), remaining[0])
	k.cli.HandleError(err, "getting key '"+remaining[0]+"'")

	for _, tuple := range resp.Tuples {
		if tuple.Error {
			k.cli.Printf("%s: <does not exist>\n", tuple.Key)
			continue
		}
		k.cli.Printf("%s: %s\n", tuple.Key, strings.Join(tuple.Payload, ","))
	}
}

// CrossGet performs a CROSS-consistency read over multiple keys.
func (k *KVCommands) CrossGet(args []string) {
	config, remaining, err := k.cli.ParseGlobalFlags(args, "cross-get")
	if err == flag.ErrHelp {
		k.cli.Println("Usage: causalcachectl kv cross-get <key> [key...] [options]")
		return
	}
	k.cli.HandleError(err, "parsing flags")
	k.cli.ValidateMinArgs(remaining, 1, "Usage: causalcachectl kv cross-get <key> [key...]")

	client := k.cli.CreateClient(config)
	resp, err := client.GetCross(k.clientID(config), remaining)
	k.cli.HandleError(err, "cross-reading keys")

	for _, tuple := range resp.Tuples {
		if tuple.Error {
			k.cli.Printf("%s: <does not exist>\n", tuple.Key)
			continue
		}
		k.cli.Printf("%s: %s\n", tuple.Key, strings.Join(tuple.Payload, ","))
	}
}

// Put writes a key with one or more payload elements at SINGLE
// consistency, or CROSS when --cross is passed.
func (k *KVCommands) Put(args []string) {
	var cross bool
	filtered := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--cross" {
			cross = true
			continue
		}
		filtered = append(filtered, a)
	}

	config, remaining, err := k.cli.ParseGlobalFlags(filtered, "put")
	if err == flag.ErrHelp {
		k.cli.Println("Usage: causalcachectl kv put <key> <value> [value...] [--cross] [options]")
		return
	}
	k.cli.HandleError(err, "parsing flags")
	k.cli.ValidateMinArgs(remaining, 2, "Usage: causalcachectl kv put <key> <value> [value...]")

	key := remaining[0]
	payload := remaining[1:]

	consistency := "SINGLE"
	if cross {
		consistency = "CROSS"
	}

	client := k.cli.CreateClient(config)
	_, err = client.Put(k.clientID(config), uuid.NewString(), consistency, key, payload)
	k.cli.HandleError(err, "putting key '"+key+"'")

	k.cli.Printf("Successfully put key: %s\n", key)
}

// GC releases a client id's pinned version-store entries.
func (k *KVCommands) GC(args []string) {
	config, remaining, err := k.cli.ParseGlobalFlags(args, "gc")
	if err == flag.ErrHelp {
		k.cli.Println("Usage: causalcachectl kv gc <client-id> [options]")
		return
	}
	k.cli.HandleError(err, "parsing flags")
	k.cli.ValidateArgs(remaining, 1, 1, "Usage: causalcachectl kv gc <client-id>")

	client := k.cli.CreateClient(config)
	err = client.GC(remaining[0])
	k.cli.HandleError(err, "releasing client id '"+remaining[0]+"'")

	k.cli.Printf("Released pinned versions for client: %s\n", remaining[0])
}
