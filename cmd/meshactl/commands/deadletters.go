package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// deadlettersCmd reuses the admin surface's single observed-event stream,
// filtering down to deadletter/protocol-violation entries, since the
// admin surface only speaks the one WebSocket protocol (see
// internal/admin.Hub) rather than exposing a separate HTTP endpoint.
var deadlettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Stream deadletter and protocol-violation events",
	RunE:  runDeadletters,
}

func runDeadletters(cmd *cobra.Command, args []string) error {
	conn, err := dialAdmin()
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("admin stream closed: %w", err)
		}
		if msg.Type != "observed" {
			continue
		}

		kind, _ := msg.Payload["kind"].(string)
		if kind != "deadletter" && kind != "protocol_violation" {
			continue
		}

		enc.Encode(msg.Payload)
	}
}
