// Package main provides the botfleet CLI.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		serveCmd(args)
	case "useradd":
		useraddCmd(args)
	case "version":
		fmt.Printf("botfleet %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Botfleet - multi-tenant Telegram bot hosting

Usage:
  botfleet <command> [options]

Commands:
  serve     Run the API server and the bot fleet supervisor
  useradd   Create a user account directly in the database
  version   Print version information
  help      Show this help message

Examples:
  botfleet serve --addr :8000 --db botfleet.db
  botfleet useradd --db botfleet.db --username admin --admin
  botfleet serve --config botfleet.yaml

Run 'botfleet <command> --help' for more information on a command.`)
}
