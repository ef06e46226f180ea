package raft

import (
	"fmt"
	"net"
	"time"

	"github.com/kartikbazzad/territory/internal/wire"
)

// TCPTransport implements RPCClient using the wire protocol over TCP, dialing
// a new connection for every call. The inbound side is Server below: its
// Serve accepts connections and dispatches each to the matching Node method.
type TCPTransport struct {
	Timeout time.Duration
}

// NewTCPTransport returns a transport with a short internal-RPC timeout;
// these calls never cross a WAN, so they should fail fast rather than hang
// the replication loop.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{Timeout: 2 * time.Second}
}

func (t *TCPTransport) SendRequestVote(peer string, args wire.RequestVoteRequest) (wire.RequestVoteReply, error) {
	conn, err := net.DialTimeout("tcp", peer, t.Timeout)
	if err != nil {
		return wire.RequestVoteReply{}, err
	}
	defer conn.Close()

	if err := wire.WriteMessage(conn, wire.OpRequestVote, args); err != nil {
		return wire.RequestVoteReply{}, err
	}

	header, err := wire.ReadHeader(conn)
	if err != nil {
		return wire.RequestVoteReply{}, err
	}
	if header.OpCode == wire.OpError {
		var errBody wire.ErrorBody
		_ = wire.ReadBody(conn, header.Length, &errBody)
		return wire.RequestVoteReply{}, fmt.Errorf("rpc error: %s", errBody.Error)
	}

	var reply wire.RequestVoteReply
	if err := wire.ReadBody(conn, header.Length, &reply); err != nil {
		return wire.RequestVoteReply{}, err
	}
	return reply, nil
}

func (t *TCPTransport) SendAppendEntries(peer string, args wire.AppendEntriesRequest) (wire.AppendEntriesReply, error) {
	conn, err := net.DialTimeout("tcp", peer, t.Timeout)
	if err != nil {
		return wire.AppendEntriesReply{}, err
	}
	defer conn.Close()

	if err := wire.WriteMessage(conn, wire.OpAppendEntries, args); err != nil {
		return wire.AppendEntriesReply{}, err
	}

	header, err := wire.ReadHeader(conn)
	if err != nil {
		return wire.AppendEntriesReply{}, err
	}
	if header.OpCode == wire.OpError {
		var errBody wire.ErrorBody
		_ = wire.ReadBody(conn, header.Length, &errBody)
		return wire.AppendEntriesReply{}, fmt.Errorf("rpc error: %s", errBody.Error)
	}

	var reply wire.AppendEntriesReply
	if err := wire.ReadBody(conn, header.Length, &reply); err != nil {
		return wire.AppendEntriesReply{}, err
	}
	return reply, nil
}

func (t *TCPTransport) SendInstallSnapshot(peer string, args wire.InstallSnapshotRequest) (wire.InstallSnapshotReply, error) {
	conn, err := net.DialTimeout("tcp", peer, t.Timeout)
	if err != nil {
		return wire.InstallSnapshotReply{}, err
	}
	defer conn.Close()

	if err := wire.WriteMessage(conn, wire.OpInstallSnapshot, args); err != nil {
		return wire.InstallSnapshotReply{}, err
	}

	header, err := wire.ReadHeader(conn)
	if err != nil {
		return wire.InstallSnapshotReply{}, err
	}
	if header.OpCode == wire.OpError {
		var errBody wire.ErrorBody
		_ = wire.ReadBody(conn, header.Length, &errBody)
		return wire.InstallSnapshotReply{}, fmt.Errorf("rpc error: %s", errBody.Error)
	}

	var reply wire.InstallSnapshotReply
	if err := wire.ReadBody(conn, header.Length, &reply); err != nil {
		return wire.InstallSnapshotReply{}, err
	}
	return reply, nil
}

// Server accepts peer RPCs on a listener and dispatches them to a Node.
type Server struct {
	node *Node
}

// NewServer returns a raft RPC server for node.
func NewServer(node *Node) *Server {
	return &Server{node: node}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	header, err := wire.ReadHeader(conn)
	if err != nil {
		return
	}

	switch header.OpCode {
	case wire.OpRequestVote:
		var args wire.RequestVoteRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			writeError(conn, err)
			return
		}
		reply := s.node.RequestVote(args)
		_ = wire.WriteMessage(conn, wire.OpReply, reply)

	case wire.OpAppendEntries:
		var args wire.AppendEntriesRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			writeError(conn, err)
			return
		}
		reply := s.node.AppendEntries(args)
		_ = wire.WriteMessage(conn, wire.OpReply, reply)

	case wire.OpInstallSnapshot:
		var args wire.InstallSnapshotRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			writeError(conn, err)
			return
		}
		reply := s.node.InstallSnapshot(args)
		_ = wire.WriteMessage(conn, wire.OpReply, reply)

	default:
		writeError(conn, fmt.Errorf("unknown opcode %d", header.OpCode))
	}
}

func writeError(conn net.Conn, err error) {
	_ = wire.WriteMessage(conn, wire.OpError, wire.ErrorBody{Error: err.Error()})
}
