package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/candlecorp/wick/packet"
)

// senderConfig is core::sender's inline configuration: a single literal
// value to emit, with an optional content-type hint.
type senderConfig struct {
	Value       json.RawMessage `json:"value"`
	ContentType string          `json:"contentType"`
}

// Sender is the core::sender built-in (spec §4.3): no inputs, emits a
// single configured value on "output", then Done.
type Sender struct {
	fixedSignature
}

func (s *Sender) InputNames() []string  { return nil }
func (s *Sender) OutputNames() []string { return []string{"output"} }
func (s *Sender) DynamicPorts() bool    { return false }

func (s *Sender) Handle(_ context.Context, _ Invocation, _ Frame, config json.RawMessage) (<-chan packet.Packet, error) {
	var cfg senderConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("core::sender: invalid config: %w", err)
		}
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}

	var out = make(chan packet.Packet, 2)
	out <- packet.New("output", cfg.Value, cfg.ContentType)
	out <- packet.NewDone("output")
	close(out)
	return out, nil
}
