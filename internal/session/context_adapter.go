package session

import (
	"context"
	"fmt"
)

// TailText adapts Attach to the context.HistoryReader interface,
// returning the last n messages rendered as "role: content" lines for
// agent[tail:N] resolution (§4.6).
func (s *Store) TailText(ctx context.Context, sessionID string, n int) ([]string, error) {
	sess, err := s.Attach(sessionID)
	if err != nil {
		return nil, err
	}
	msgs := sess.Messages
	if n > 0 && n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return out, nil
}
