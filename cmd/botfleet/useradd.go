package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/everydev1618/botfleet/serve"
)

// useraddCmd creates a user directly in the database. Account creation via
// the API requires an admin, so this is how the first admin gets made.
func useraddCmd(args []string) {
	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	dbPath := fs.String("db", "botfleet.db", "SQLite database path")
	username := fs.String("username", "", "Username for the new account")
	password := fs.String("password", "", "Password (prompted if omitted)")
	admin := fs.Bool("admin", false, "Grant admin rights")

	fs.Usage = func() {
		fmt.Println(`Usage: botfleet useradd [options]

Create a user account directly in the database.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  botfleet useradd --username admin --admin
  botfleet useradd --db /var/lib/botfleet/botfleet.db --username alice`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *username == "" {
		fmt.Fprintln(os.Stderr, "Error: --username is required")
		fs.Usage()
		os.Exit(1)
	}

	pw := *password
	if pw == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			os.Exit(1)
		}
		pw = string(raw)
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "Error: empty password")
		os.Exit(1)
	}

	store, err := serve.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
		os.Exit(1)
	}

	hash, err := serve.HashPassword(pw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	id, err := store.CreateUser(*username, hash, *admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created user %s (id %d, admin=%v)\n", *username, id, *admin)
}
