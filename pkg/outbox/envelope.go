package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// PayloadVersion is the envelope version written by Emit. Readers reject
// anything newer.
const PayloadVersion = 1

// ActorRef is the Discord member whose action produced the event.
type ActorRef struct {
	UserID string          `json:"userId"`
	Role   enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published as the
// message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and checks it carries data this
// build understands.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > PayloadVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.EventID == "" {
		return env, errors.New("envelope missing event id")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, errors.New("envelope missing data")
	}
	return env, nil
}
