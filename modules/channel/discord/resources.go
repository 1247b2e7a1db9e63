package discord

import (
	"context"
	"sync"

	"github.com/flemzord/chanreset/internal/fetch"
	"github.com/flemzord/chanreset/internal/reset"
)

// Resources exposes guild channels as reset.ResourceClient.
type Resources struct {
	client *Client

	mu         sync.Mutex
	guildNames map[string]string
}

// Compile-time interface check.
var _ reset.ResourceClient = (*Resources)(nil)

// NewResources wraps client.
func NewResources(client *Client) *Resources {
	return &Resources{client: client, guildNames: make(map[string]string)}
}

// FetchPage implements fetch.Source.
func (r *Resources) FetchPage(ctx context.Context, resourceID string, req fetch.PageRequest) ([]fetch.Item, error) {
	q := MessageQuery{Limit: req.Limit}
	switch req.Mode {
	case fetch.Before:
		q.Before = req.Anchor
	case fetch.After:
		q.After = req.Anchor
	case fetch.Around:
		q.Around = req.Anchor
	}

	msgs, err := r.client.GetMessages(ctx, resourceID, q)
	if err != nil {
		return nil, mapNotFound(err)
	}
	items := make([]fetch.Item, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, fetch.Item{
			ID:        m.ID,
			Author:    m.Author.DisplayName(),
			Timestamp: m.Timestamp,
			Content:   m.Content,
		})
	}
	return items, nil
}

// Describe implements reset.ResourceClient.
func (r *Resources) Describe(ctx context.Context, resourceID string) (reset.Resource, error) {
	ch, err := r.client.GetChannel(ctx, resourceID)
	if err != nil {
		return reset.Resource{}, mapNotFound(err)
	}
	name, err := r.guildName(ctx, ch.GuildID)
	if err != nil {
		return reset.Resource{}, err
	}
	return reset.Resource{
		ID:        ch.ID,
		GroupID:   ch.GuildID,
		Name:      ch.Name,
		GroupName: name,
	}, nil
}

// GetPosition implements reset.ResourceClient.
func (r *Resources) GetPosition(ctx context.Context, resourceID string) (int, error) {
	ch, err := r.client.GetChannel(ctx, resourceID)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return ch.Position, nil
}

// SetPosition implements reset.ResourceClient.
func (r *Resources) SetPosition(ctx context.Context, resourceID string, position int) error {
	ch, err := r.client.GetChannel(ctx, resourceID)
	if err != nil {
		return mapNotFound(err)
	}
	err = r.client.ModifyChannelPositions(ctx, ch.GuildID, []PositionUpdate{{ID: resourceID, Position: position}})
	return mapNotFound(err)
}

// CloneResource implements reset.ResourceClient. The copy keeps the name,
// type, topic, category, flags, limits and permission overwrites.
func (r *Resources) CloneResource(ctx context.Context, resourceID string) (string, error) {
	ch, err := r.client.GetChannel(ctx, resourceID)
	if err != nil {
		return "", mapNotFound(err)
	}
	created, err := r.client.CreateGuildChannel(ctx, ch.GuildID, CreateChannelRequest{
		Name:                 ch.Name,
		Type:                 ch.Type,
		Topic:                ch.Topic,
		NSFW:                 ch.NSFW,
		RateLimitPerUser:     ch.RateLimitPerUser,
		Bitrate:              ch.Bitrate,
		UserLimit:            ch.UserLimit,
		ParentID:             ch.ParentID,
		PermissionOverwrites: ch.PermissionOverwrites,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteResource implements reset.ResourceClient.
func (r *Resources) DeleteResource(ctx context.Context, resourceID string) error {
	return mapNotFound(r.client.DeleteChannel(ctx, resourceID))
}

func (r *Resources) guildName(ctx context.Context, guildID string) (string, error) {
	r.mu.Lock()
	name, ok := r.guildNames[guildID]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	g, err := r.client.GetGuild(ctx, guildID)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.guildNames[guildID] = g.Name
	r.mu.Unlock()
	return g.Name, nil
}
