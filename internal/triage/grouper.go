package triage

import (
	"sort"
	"strconv"

	"github.com/linnemanlabs/sift/internal/notification"
)

const (
	// collapseChars and collapseMembers are display hints only: a thread
	// over either threshold renders collapsed, but all members stay
	// retrievable.
	collapseChars   = 800
	collapseMembers = 6
)

// Thread is a derived grouping of records sharing a conversation identity.
// It is a view recomputed from the current record set, never persisted.
type Thread struct {
	Key        string
	Title      string
	IsGroup    bool
	Records    []notification.Record // ascending timestamp
	TotalChars int
}

// Collapsed reports whether the thread should render folded by volume.
func (t *Thread) Collapsed() bool {
	return t.TotalChars > collapseChars || len(t.Records) > collapseMembers
}

// LastTimestamp returns the timestamp string of the most recent member,
// or "" for an empty thread.
func (t *Thread) LastTimestamp() string {
	if len(t.Records) == 0 {
		return ""
	}
	return t.Records[len(t.Records)-1].Timestamp
}

// MaxImportance returns the highest importance ordinal among members.
func (t *Thread) MaxImportance() int {
	max := 0
	for i := range t.Records {
		if o := t.Records[i].Importance.Ordinal(); o > max {
			max = o
		}
	}
	return max
}

// ThreadKey computes the conversation identity of a record. Group chats
// (those carrying a title) key on the chat ID; everything else keys on
// whichever sender identity is available, bottoming out in a shared
// "private" bucket so records with no identity at all still group.
func ThreadKey(r *notification.Record) string {
	if r.ThreadTitle != "" {
		return "group::" + strconv.FormatInt(r.ThreadID, 10)
	}
	if r.SenderID != 0 {
		return "private::" + strconv.FormatInt(r.SenderID, 10)
	}
	if r.ThreadID != 0 {
		return "private::" + strconv.FormatInt(r.ThreadID, 10)
	}
	if r.SenderName != "" {
		return "private::" + r.SenderName
	}
	return "private"
}

// GroupThreads partitions records into threads in a single stable pass:
// threads appear in order of their first member, and members within a
// thread are sorted to ascending timestamp.
func GroupThreads(records []notification.Record) []*Thread {
	byKey := make(map[string]*Thread)
	var order []string

	for i := range records {
		r := records[i]
		key := ThreadKey(&r)

		t, ok := byKey[key]
		if !ok {
			t = &Thread{
				Key:     key,
				IsGroup: r.ThreadTitle != "",
			}
			byKey[key] = t
			order = append(order, key)
		}
		if t.Title == "" {
			if r.ThreadTitle != "" {
				t.Title = r.ThreadTitle
			} else if r.SenderName != "" {
				t.Title = r.SenderName
			}
		}
		t.Records = append(t.Records, r)
		t.TotalChars += len(r.BodyText)
	}

	threads := make([]*Thread, 0, len(order))
	for _, key := range order {
		t := byKey[key]
		sort.SliceStable(t.Records, func(i, j int) bool {
			return t.Records[i].Timestamp < t.Records[j].Timestamp
		})
		threads = append(threads, t)
	}
	return threads
}
