package bus

import (
	"fmt"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// New creates an event bus from configuration. "channel" is the in-process
// default; "nats" is used when events must cross process boundaries.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
