package discord

import (
	"context"
	"fmt"

	"github.com/flemzord/chanreset/internal/archive"
)

// transcriptFilename is the attachment name of every archived transcript.
const transcriptFilename = "messages.txt"

// GraveyardSink posts transcripts to a dedicated channel.
type GraveyardSink struct {
	client    *Client
	channelID string
}

// Compile-time interface check.
var _ archive.Sink = (*GraveyardSink)(nil)

// NewGraveyardSink creates a sink posting to channelID.
func NewGraveyardSink(client *Client, channelID string) *GraveyardSink {
	return &GraveyardSink{client: client, channelID: channelID}
}

// Deliver implements archive.Sink.
func (g *GraveyardSink) Deliver(ctx context.Context, _, _ string, transcript []byte, meta archive.Metadata) error {
	content := fmt.Sprintf("Channel %s in guild %s has been reset.", meta.ResourceName, meta.GroupName)
	if _, err := g.client.CreateMessageWithFile(ctx, g.channelID, content, transcriptFilename, transcript); err != nil {
		return fmt.Errorf("discord: post transcript to graveyard: %w", err)
	}
	return nil
}
