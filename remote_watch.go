package notehive

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// Watch opens the Nimbus live change stream for the user over a websocket.
// Every entity change the server pushes arrives as a ChangeEvent on the
// returned channel. The channel is closed when ctx is cancelled or the
// connection drops; callers re-establish the watch on the next
// offline-to-online transition.
func (r *HTTPRemote) Watch(ctx context.Context, userID string) (<-chan ChangeEvent, error) {
	wsURL := wsBaseURL(r.baseURL) + "/api/v1/changes?user_id=" + url.QueryEscape(userID)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + r.apiKey},
		},
	})
	if err != nil {
		return nil, err
	}

	events := make(chan ChangeEvent)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				r.debug.Log("watch: closed for user %s: %v", userID, err)
				return
			}

			var ev ChangeEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				r.debug.Log("watch: skipping malformed event: %v", err)
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// wsBaseURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
