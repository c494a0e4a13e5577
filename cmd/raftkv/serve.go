package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/KilimcininKorOglu/raftkv/internal/config"
	"github.com/KilimcininKorOglu/raftkv/internal/logging"
	"github.com/KilimcininKorOglu/raftkv/internal/raft"
)

// serveCmd runs a cluster node until interrupted.
func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to the config file (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "serve: -config is required")
		return 1
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}

	opts, err := optionsFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   filepath.Join(cfg.Path, "LOG"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: open log: %v\n", err)
		return 1
	}

	node, err := raft.Open(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}

	fmt.Printf("raftkv serving on %s (cluster of %d)\n", cfg.Listen, len(cfg.Members))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received %s, shutting down\n", sig)

	node.Stop()
	return 0
}

// optionsFromConfig maps the file configuration onto node options.
func optionsFromConfig(cfg *config.Config) (*raft.Options, error) {
	host, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	return &raft.Options{
		LocalIP:         host,
		LocalPort:       port,
		Members:         cfg.Members,
		Path:            cfg.Path,
		Heartbeat:       cfg.Heartbeat,
		ElectionTimeout: cfg.ElectionTimeout,
		SingleMode:      cfg.SingleMode,
	}, nil
}
