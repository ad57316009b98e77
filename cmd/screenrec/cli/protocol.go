// Package cli implements the control-surface CLI: one long-running
// "record" process owns the SessionController, and the other
// subcommands (start/stop/pause/resume/mute/status) are thin clients
// that speak a line-delimited JSON protocol to it over a Unix domain
// socket — the same "daemon plus thin command clients" shape the GUI
// shell would otherwise provide by embedding the controller directly.
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"screenrec/internal/domain"
)

// request is one line sent from a client to the record process.
type request struct {
	Command string `json:"command"`
	Muted   bool   `json:"muted,omitempty"`
}

// response is one line sent back from the record process.
type response struct {
	Status *domain.Status   `json:"status,omitempty"`
	Snap   *domain.Snapshot `json:"telemetry,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// socketPath resolves the Unix domain socket path the record process
// listens on and clients dial. Honors SCREENREC_SOCKET; falls back to
// the runtime directory, then the OS temp directory.
func socketPath() string {
	if p := os.Getenv("SCREENREC_SOCKET"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "screenrec.sock")
}

// dial connects to the running record process and returns an error
// advising the caller to run `screenrec record` first if none is
// listening.
func dial() (net.Conn, error) {
	path := socketPath()
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cli: no recording session running (socket %s): %w", path, err)
	}
	return conn, nil
}

// sendCommand dials the record process, sends req, and returns the
// decoded response.
func sendCommand(req request) (response, error) {
	conn, err := dial()
	if err != nil {
		return response{}, err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("cli: send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return response{}, fmt.Errorf("cli: read response: %w", err)
		}
		return response{}, fmt.Errorf("cli: record process closed the connection without a response")
	}

	var resp response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return response{}, fmt.Errorf("cli: decode response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("cli: %s", resp.Error)
	}
	return resp, nil
}

// printStatus renders a domain.Status the same way every thin client
// reports the outcome of its command.
func printStatus(s domain.Status) {
	fmt.Printf("state=%s active=%t muted=%t", s.State, s.Active, s.Muted)
	if s.SessionID != "" {
		fmt.Printf(" session=%s", s.SessionID)
	}
	if s.OutputPath != "" {
		fmt.Printf(" output=%s", s.OutputPath)
	}
	fmt.Println()
}
