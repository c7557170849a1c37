package reduce

import (
	"fmt"

	"goa.design/agentwire/patch"
	"goa.design/agentwire/protocol"
)

// applyMessagesSnapshot reconciles an incoming full-history snapshot with the
// current conversation. Dialogue messages are matched by id only: ids present
// in both lists keep the snapshot's position and content, ids only in the
// snapshot are new, ids only in the current list are dropped. An entity that
// reappears under a new id is deliberately not unified with its old entry.
//
// Activity messages never travel in snapshots; each one currently in the
// conversation is re-anchored into the reconciled list next to the dialogue
// message it followed. When the anchor id itself was dropped by the snapshot
// the activity keeps the vacated slot: it is inserted where the anchor used to
// sit, ahead of the messages that now occupy the surrounding positions.
func (r *Reducer) applyMessagesSnapshot(incoming []protocol.Message) {
	type anchored struct {
		msg protocol.Message
		// anchorID is the id of the dialogue message immediately preceding
		// the activity, empty when the activity opened the conversation.
		anchorID string
		// ordinal is the anchor's index among the old dialogue messages, -1
		// when the activity had no anchor.
		ordinal int
	}

	var activities []anchored
	lastAnchor := ""
	lastOrdinal := -1
	for _, m := range r.messages {
		if m.IsActivity() {
			activities = append(activities, anchored{msg: m, anchorID: lastAnchor, ordinal: lastOrdinal})
			continue
		}
		lastAnchor = m.ID
		lastOrdinal++
	}

	next := make([]protocol.Message, len(incoming))
	for i, m := range incoming {
		next[i] = m.Clone()
	}

	// slot maps each activity to the dialogue ordinal it follows in the new
	// list: the anchor's new position when the anchor survived, the position
	// the anchor vacated otherwise.
	surviving := make(map[string]int, len(next))
	for i, m := range next {
		surviving[m.ID] = i
	}
	slotFor := func(a anchored) int {
		if a.anchorID == "" {
			return -1
		}
		if pos, ok := surviving[a.anchorID]; ok {
			return pos
		}
		slot := a.ordinal - 1
		if slot > len(next)-1 {
			slot = len(next) - 1
		}
		return slot
	}

	bySlot := make(map[int][]protocol.Message)
	for _, a := range activities {
		// A snapshot that ships an entry under the activity's own id wins.
		if _, taken := surviving[a.msg.ID]; taken {
			continue
		}
		slot := slotFor(a)
		bySlot[slot] = append(bySlot[slot], a.msg)
	}

	merged := make([]protocol.Message, 0, len(next)+len(activities))
	merged = append(merged, bySlot[-1]...)
	for i, m := range next {
		merged = append(merged, m)
		merged = append(merged, bySlot[i]...)
	}
	r.messages = merged
}

// applyActivitySnapshot creates or replaces the activity message named by the
// event. Creation appends; replacement is wholesale and may overwrite a
// dialogue message occupying the id. A snapshot for an existing message with
// Replace unset is ignored: the existing content wins.
func (r *Reducer) applyActivitySnapshot(e *protocol.ActivitySnapshotEvent) {
	for i := range r.messages {
		if r.messages[i].ID != e.MessageID {
			continue
		}
		if !e.Replace {
			return
		}
		r.messages[i] = protocol.Message{
			ID:           e.MessageID,
			Role:         protocol.RoleActivity,
			ActivityType: e.ActivityType,
			Content:      cloneState(e.Content),
		}
		return
	}
	r.messages = append(r.messages, protocol.Message{
		ID:           e.MessageID,
		Role:         protocol.RoleActivity,
		ActivityType: e.ActivityType,
		Content:      cloneState(e.Content),
	})
}

// applyActivityDelta patches the content of an existing activity message. A
// delta for a message that does not exist yet is dropped, not buffered. A
// failing patch is fatal for the run, same as a failing state delta.
func (r *Reducer) applyActivityDelta(e *protocol.ActivityDeltaEvent) error {
	for i := range r.messages {
		if r.messages[i].ID != e.MessageID {
			continue
		}
		next, err := patch.Apply(r.messages[i].Content, e.Patch)
		if err != nil {
			return fmt.Errorf("%w: activity %q: %w", ErrPatchFailed, e.MessageID, err)
		}
		r.messages[i].Content = next
		if e.ActivityType != "" {
			r.messages[i].ActivityType = e.ActivityType
		}
		return nil
	}
	return nil
}
