package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/ava.sock"

// ControlMessage is one JSON request on the control socket.
type ControlMessage struct {
	Cmd string `json:"cmd"`
}

// StatusReply answers a "status" command.
type StatusReply struct {
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

// Handler consumes one control message and may produce a reply. A nil reply
// just closes the connection, which is all "trigger" needs.
type Handler func(ControlMessage) *StatusReply

type Server struct {
	path string
	ln   net.Listener
}

func StartServer(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln}
	go s.acceptLoop(handler)
	return s, nil
}

func (s *Server) acceptLoop(handler Handler) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		go handleConn(conn, handler)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		return
	}
	if reply := handler(msg); reply != nil {
		json.NewEncoder(conn).Encode(reply)
	}
}

func SendCommand(path, cmd string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	return json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd})
}

// QueryStatus sends a "status" command and waits briefly for the reply.
func QueryStatus(path string) (StatusReply, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return StatusReply{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: "status"}); err != nil {
		return StatusReply{}, err
	}
	var reply StatusReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return StatusReply{}, fmt.Errorf("read status: %w", err)
	}
	return reply, nil
}
