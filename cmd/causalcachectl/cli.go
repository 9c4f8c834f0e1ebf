package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// CLI represents the command-line interface with dependencies
type CLI struct {
	Output io.Writer
	Error  io.Writer
	Exit   func(int)
}

// NewCLI creates a new CLI instance with default dependencies
func NewCLI() *CLI {
	return &CLI{
		Output: os.Stdout,
		Error:  os.Stderr,
		Exit:   os.Exit,
	}
}

// GlobalConfig holds common configuration for all commands
type GlobalConfig struct {
	ServerURL string
	ClientID  string
}

// ParseGlobalFlags parses common flags and returns GlobalConfig and remaining args
func (cli *CLI) ParseGlobalFlags(args []string, commandName string) (*GlobalConfig, []string, error) {
	config := &GlobalConfig{}

	flagSet := flag.NewFlagSet(commandName, flag.ContinueOnError)
	flagSet.SetOutput(cli.Error)
	flagSet.StringVar(&config.ServerURL, "server", "http://localhost:8420", "causal cache server URL")
	flagSet.StringVar(&config.ClientID, "client-id", "", "client id to use for this request (default: random)")

	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		return nil, nil, flag.ErrHelp
	}

	err := flagSet.Parse(args)
	if err != nil {
		return nil, nil, err
	}

	return config, flagSet.Args(), nil
}

// CreateClient creates a Client from GlobalConfig
func (cli *CLI) CreateClient(config *GlobalConfig) *Client {
	return NewClient(config.ServerURL)
}

// Printf writes formatted output to the output writer
func (cli *CLI) Printf(format string, args ...interface{}) {
	fmt.Fprintf(cli.Output, format, args...)
}

// Println writes a line to the output writer
func (cli *CLI) Println(args ...interface{}) {
	fmt.Fprintln(cli.Output, args...)
}

// Errorln writes an error line to the error writer
func (cli *CLI) Errorln(args ...interface{}) {
	fmt.Fprintln(cli.Error, args...)
}

// Errorf writes formatted error to the error writer
func (cli *CLI) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(cli.Error, format, args...)
}

// HandleError checks if error exists, prints it and exits
func (cli *CLI) HandleError(err error, context string) {
	if err != nil {
		cli.Errorf("Error %s: %v\n", context, err)
		cli.Exit(1)
	}
}

// ValidateArgs checks if the number of arguments is within the expected range
func (cli *CLI) ValidateArgs(args []string, min, max int, usage string) {
	if len(args) < min || len(args) > max {
		cli.Errorln(usage)
		cli.Exit(1)
	}
}

// ValidateMinArgs checks if at least n arguments are provided
func (cli *CLI) ValidateMinArgs(args []string, n int, usage string) {
	if len(args) < n {
		cli.Errorln(usage)
		cli.Exit(1)
	}
}
