package main

import (
	"fmt"
	"io"
)

// printUsage writes the top-level usage text.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `raftkv - replicated key-value store

Usage:
  raftkv <command> [options]

Commands:
  serve     Run a cluster node
  get       Read a key from the cluster
  set       Write a key to the cluster
  del       Delete a key from the cluster
  status    Show one node's consensus status
  version   Show version information
  help      Show this help

Run 'raftkv <command> -h' for command options.
`)
}
