package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KilimcininKorOglu/raftkv/internal/raft"
)

// dial returns a client-only transport; Listen is never called on it.
func dial() *raft.TCPTransport {
	t := raft.NewTCPTransport("")
	t.SetTimeout(5 * time.Second)
	return t
}

func clientFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:9000", "address of any cluster node")
	return fs, addr
}

// getCmd reads a key through the cluster.
func getCmd(args []string) int {
	fs, addr := clientFlags("get")
	dirty := fs.Bool("dirty", false, "unreplicated local read on the target node")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: raftkv get [-addr host:port] [-dirty] <key>")
		return 1
	}

	client := dial()
	defer client.Close()

	msgType := raft.RPCRead
	if *dirty {
		msgType = raft.RPCDirtyRead
	}
	req := &raft.ClientRequest{Key: []byte(fs.Arg(0))}
	data, err := client.Send(*addr, msgType, req.Serialize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "get: %v\n", err)
		return 1
	}
	reply, err := raft.DeserializeClientReply(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get: %v\n", err)
		return 1
	}
	switch reply.Code {
	case raft.StatusOk:
		fmt.Println(string(reply.Value))
		return 0
	case raft.StatusNotFound:
		fmt.Fprintln(os.Stderr, "get: key not found")
		return 1
	default:
		fmt.Fprintln(os.Stderr, "get: command failed")
		return 1
	}
}

// setCmd writes a key through the cluster.
func setCmd(args []string) int {
	fs, addr := clientFlags("set")
	dirty := fs.Bool("dirty", false, "unreplicated best-effort write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: raftkv set [-addr host:port] [-dirty] <key> <value>")
		return 1
	}

	client := dial()
	defer client.Close()

	msgType := raft.RPCWrite
	if *dirty {
		msgType = raft.RPCDirtyWrite
	}
	req := &raft.ClientRequest{Key: []byte(fs.Arg(0)), Value: []byte(fs.Arg(1))}
	data, err := client.Send(*addr, msgType, req.Serialize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "set: %v\n", err)
		return 1
	}
	reply, err := raft.DeserializeClientReply(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set: %v\n", err)
		return 1
	}
	if reply.Code != raft.StatusOk {
		fmt.Fprintln(os.Stderr, "set: command failed")
		return 1
	}
	fmt.Println("OK")
	return 0
}

// delCmd deletes a key through the cluster.
func delCmd(args []string) int {
	fs, addr := clientFlags("del")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: raftkv del [-addr host:port] <key>")
		return 1
	}

	client := dial()
	defer client.Close()

	req := &raft.ClientRequest{Key: []byte(fs.Arg(0))}
	data, err := client.Send(*addr, raft.RPCDelete, req.Serialize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "del: %v\n", err)
		return 1
	}
	reply, err := raft.DeserializeClientReply(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "del: %v\n", err)
		return 1
	}
	if reply.Code != raft.StatusOk {
		fmt.Fprintln(os.Stderr, "del: command failed")
		return 1
	}
	fmt.Println("OK")
	return 0
}

// statusCmd queries one node's consensus status.
func statusCmd(args []string) int {
	fs, addr := clientFlags("status")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	client := dial()
	defer client.Close()

	data, err := client.Send(*addr, raft.RPCServerStatus, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	status, err := raft.DeserializeServerStatus(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	fmt.Printf("node:         %s\n", *addr)
	fmt.Printf("role:         %s\n", status.Role)
	fmt.Printf("term:         %d\n", status.Term)
	fmt.Printf("commitIndex:  %d\n", status.CommitIndex)
	fmt.Printf("lastApplied:  %d\n", status.LastApplied)
	fmt.Printf("lastLog:      (%d, %d)\n", status.LastLogTerm, status.LastLogIndex)
	if status.LeaderIP != "" {
		fmt.Printf("leader:       %s:%d\n", status.LeaderIP, status.LeaderPort)
	} else {
		fmt.Println("leader:       unknown")
	}
	return 0
}
