// Package syncq is the CLI's offline command queue. Purchases and credits
// made while the API is unreachable are appended here and replayed on the
// next sync.
package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Command struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	ItemID       string `json:"item_id,omitempty"`
	AmountMicros int64  `json:"amount_micros,omitempty"`
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".artislife")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends a command, assigning it a fresh ID when the caller left it
// empty. The ID is the command's replay key: the server applies each key at
// most once, so re-sending a queue after a lost response is safe.
func Push(cmd Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Clear drops the queue after a successful replay.
func Clear() error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
