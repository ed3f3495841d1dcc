package triage

import (
	"testing"

	"github.com/linnemanlabs/sift/internal/notification"
)

func viewWith(key string, priority int, lastTS string) ThreadView {
	return ThreadView{
		GroupKey: key,
		Priority: priority,
		Messages: []notification.Record{{Timestamp: lastTS}},
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	views := []ThreadView{
		viewWith("old-low", 1, "2026-02-01T10:00:00Z"),
		viewWith("new-high", 4, "2026-02-10T10:00:00Z"),
		viewWith("old-high", 4, "2026-02-05T10:00:00Z"),
		viewWith("new-low", 1, "2026-02-10T10:00:00Z"),
	}

	Rank(views)

	want := []string{"new-high", "old-high", "new-low", "old-low"}
	for i, key := range want {
		if views[i].GroupKey != key {
			t.Errorf("views[%d] = %q, want %q", i, views[i].GroupKey, key)
		}
	}
}

func TestRank_UnparsableTimestampsSortLast(t *testing.T) {
	t.Parallel()

	views := []ThreadView{
		viewWith("bad-ts", 3, "not-a-time"),
		viewWith("good-ts", 3, "2026-02-10T10:00:00Z"),
	}

	Rank(views)

	if views[0].GroupKey != "good-ts" {
		t.Errorf("views[0] = %q, want good-ts (zero time ranks last)", views[0].GroupKey)
	}
}

func TestRank_EmptyMessagesStable(t *testing.T) {
	t.Parallel()

	views := []ThreadView{
		{GroupKey: "a", Priority: 2},
		{GroupKey: "b", Priority: 2},
	}

	Rank(views)

	// Equal priority, both zero activity: stable sort keeps input order.
	if views[0].GroupKey != "a" || views[1].GroupKey != "b" {
		t.Errorf("order = [%q %q], want [a b]", views[0].GroupKey, views[1].GroupKey)
	}
}
