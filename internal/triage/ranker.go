package triage

import (
	"sort"
	"time"

	"github.com/linnemanlabs/sift/internal/notification"
)

// ThreadView is the grouped, ranked presentation payload for one thread.
type ThreadView struct {
	GroupKey      string                `json:"group_key"`
	ChatTitle     string                `json:"chat_title"`
	IsGroup       bool                  `json:"is_group"`
	Messages      []notification.Record `json:"messages"`
	Summary       string                `json:"summary"`
	Priority      int                   `json:"priority"`
	Collapsed     bool                  `json:"collapsed"`
	TotalMessages int                   `json:"total_messages"`
	TotalChars    int                   `json:"total_chars"`
}

// lastActivity is the timestamp of the most recent message in the view.
// Unparsable timestamps rank as the zero time rather than failing the
// sorting pass.
func (v *ThreadView) lastActivity() time.Time {
	if len(v.Messages) == 0 {
		return time.Time{}
	}
	return notification.ParseTimestamp(v.Messages[len(v.Messages)-1].Timestamp)
}

// Rank orders thread views for display: higher priority first, and among
// equal priorities the thread with the more recent last message first.
func Rank(views []ThreadView) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Priority != views[j].Priority {
			return views[i].Priority > views[j].Priority
		}
		return views[i].lastActivity().After(views[j].lastActivity())
	})
}
