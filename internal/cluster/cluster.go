/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package cluster bootstraps and maintains the router's view of cluster
// membership (§6.2): a one-shot seeds fetch, then a persistent event stream
// forwarding ShardEvent/CurrentShardSnapshot pushes into the Router's
// mailbox. Grounded on scm/network.go's "websocket" built-in (the same
// gorilla/websocket upgrade/read-loop/recover shape), turned from a
// server-side upgrade into a client Dial, since the coordinator is the
// consumer of this event stream (§1 external collaborator), not its host.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chronoshard/qcoord/internal/router"
	"github.com/chronoshard/qcoord/internal/shardmap"
)

// Seeds is the decoded shape of a seeds endpoint response (§6.2): a
// lexicographically sorted, possibly empty list of member addresses.
type Seeds struct {
	Members []string `json:"members"`
}

// FetchSeeds performs the one-shot `GET {seedsURL}` bootstrap call, sorting
// Members defensively even though the contract already promises sorted
// output — a misbehaving membership service should not desync shard
// resolution order downstream.
func FetchSeeds(ctx context.Context, seedsURL string) (Seeds, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seedsURL, nil)
	if err != nil {
		return Seeds{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Seeds{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Seeds{}, fmt.Errorf("cluster: seeds endpoint %s returned %d: %s", seedsURL, resp.StatusCode, body)
	}
	var s Seeds
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Seeds{}, fmt.Errorf("cluster: decoding seeds response: %w", err)
	}
	sort.Strings(s.Members)
	return s, nil
}

// message is the wire shape of one event-stream frame: exactly one of Event
// or Snapshot is set.
type message struct {
	Kind     string             `json:"kind"`
	Event    *shardmap.Event    `json:"event,omitempty"`
	Snapshot *shardmap.Snapshot `json:"snapshot,omitempty"`
}

// Client maintains one websocket connection to a membership event-stream
// endpoint and forwards every decoded frame into a Router's mailbox.
type Client struct {
	Dialer *websocket.Dialer
}

// NewClient returns a Client using gorilla/websocket's default dial settings.
func NewClient() *Client {
	return &Client{Dialer: websocket.DefaultDialer}
}

// Run dials addr and forwards ShardEvent/CurrentShardSnapshot frames to r
// until ctx is cancelled or the connection closes. Matches scm/network.go's
// websocket read loop: panics during decode/dispatch are recovered and the
// frame is dropped rather than taking the whole process down, since a single
// malformed frame from a flaky membership peer should not kill the
// coordinator.
func (c *Client) Run(ctx context.Context, addr string, r *router.Router) error {
	conn, _, err := c.Dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("cluster: dial %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("cluster: read from %s: %w", addr, err)
		}
		c.dispatch(ctx, raw, r)
	}
}

func (c *Client) dispatch(ctx context.Context, raw []byte, r *router.Router) {
	defer func() {
		if rec := recover(); rec != nil {
			// A single bad frame from the membership stream must not take
			// the router down; it simply misses this update.
		}
	}()

	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	switch {
	case msg.Snapshot != nil:
		_, _ = r.Send(ctx, router.CurrentShardSnapshot{Snapshot: *msg.Snapshot})
	case msg.Event != nil:
		_, _ = r.Send(ctx, router.ShardEvent{Event: *msg.Event})
	}
}

// RunWithRetry keeps Run alive across transient disconnects, doubling the
// wait from 1s up to 30s between attempts — membership services restart
// independently of the coordinator, and a dropped stream must not strand the
// router on a stale ShardMap forever.
func (c *Client) RunWithRetry(ctx context.Context, addr string, r *router.Router) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.Run(ctx, addr, r); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		return
	}
}
