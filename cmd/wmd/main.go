package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess             = 0
	ExitGeneralError        = 1
	ExitInvalidArgs         = 2
	ExitMetadataUnavailable = 3
	ExitNotFound            = 4
	ExitStorageError        = 5
	ExitDownloadFailed      = 6
	ExitValidationFailed    = 7
)

// Command output goes to stdout; logs and status lines to stderr.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "download":
		return runDownload(cmdArgs)
	case "versions":
		return runVersions(cmdArgs)
	case "files":
		return runFiles(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(stderr, `Usage: wmd <command> [options]

Commands:
  download  Download the files of a Wikimedia dump job into a local directory
  versions  List the published versions of a dump
  files     List the files of a dump job
  validate  Check that a job's files are present locally with the published sizes

Options can also be set in a YAML file (-config), in the environment with the
WMD_ prefix, or in a .env file in the working directory.

Run 'wmd <command> -h' for command-specific help.`)
}
