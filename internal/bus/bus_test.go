package bus

import (
	"testing"

	"ripqueue/internal/config"
	"ripqueue/internal/protocol"
)

func TestPublishStatusRejectsUnknownKind(t *testing.T) {
	c := &Client{topics: *config.Default()}
	err := c.PublishStatus(protocol.StatusEvent{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized status kind")
	}
}
