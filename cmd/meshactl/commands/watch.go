package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live counters, peer state, and observability events",
	RunE:  runWatch,
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Print the current peer/queue-depth snapshot once, then exit",
	RunE:  runPeers,
}

func dialAdmin() (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: adminAddr, Path: "/admin"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial admin surface at %s: %w", adminAddr, err)
	}
	return conn, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, err := dialAdmin()
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("admin stream closed: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(msg)
	}
}

func runPeers(cmd *cobra.Command, args []string) error {
	conn, err := dialAdmin()
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for {
		var msg struct {
			Type    string `json:"type"`
			Payload any    `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("no peers snapshot received: %w", err)
		}
		if msg.Type != "peers" {
			continue
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(msg.Payload)
	}
}
