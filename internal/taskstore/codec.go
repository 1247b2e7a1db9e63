package taskstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// persistedTask is the on-disk shape: {"channelId": "...", "resetTime": <epoch ms>}.
type persistedTask struct {
	ChannelID string `json:"channelId"`
	ResetTime int64  `json:"resetTime"`
}

func encode(tasks map[string][]Task) ([]byte, error) {
	out := make(map[string][]persistedTask, len(tasks))
	for group, list := range tasks {
		pts := make([]persistedTask, len(list))
		for i, t := range list {
			pts[i] = persistedTask{ChannelID: t.ResourceID, ResetTime: t.Deadline.UnixMilli()}
		}
		out[group] = pts
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("taskstore: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte) (map[string][]Task, error) {
	var raw map[string][]persistedTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptStateError{Err: err}
	}

	tasks := make(map[string][]Task, len(raw))
	for group, list := range raw {
		if group == "" {
			return nil, &CorruptStateError{Err: errors.New("empty group id")}
		}
		seen := make(map[string]struct{}, len(list))
		for _, pt := range list {
			if pt.ChannelID == "" {
				return nil, &CorruptStateError{Err: fmt.Errorf("group %s: empty channelId", group)}
			}
			if _, dup := seen[pt.ChannelID]; dup {
				continue
			}
			seen[pt.ChannelID] = struct{}{}
			tasks[group] = append(tasks[group], Task{
				GroupID:    group,
				ResourceID: pt.ChannelID,
				Deadline:   time.UnixMilli(pt.ResetTime),
			})
		}
	}
	return tasks, nil
}
