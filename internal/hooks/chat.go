package hooks

import (
	"github.com/klingon-exchange/klingon-v2/internal/broadcast"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// SaveChatMessage persists a user chat line and fans it out to any
// attached observer hub.
func (h *Hooks) SaveChatMessage(userID int64, username, message string) error {
	if err := h.store.SaveChatMessage(&userID, username, message); err != nil {
		return err
	}
	if h.hub != nil {
		h.hub.Broadcast(broadcast.EventChatMessage, map[string]string{
			"username": username,
			"message":  message,
		})
	}
	return nil
}

// SaveSystemMessage persists a system-originated broadcast (rare unbox
// announcements, moderation warnings) with no owning user.
func (h *Hooks) SaveSystemMessage(message string) error {
	if err := h.store.SaveChatMessage(nil, "SYSTEM", message); err != nil {
		return err
	}
	if h.hub != nil {
		h.hub.Broadcast(broadcast.EventChatMessage, map[string]string{
			"username": "SYSTEM",
			"message":  message,
		})
	}
	return nil
}

// RecentChat returns the last limit chat messages, oldest first.
func (h *Hooks) RecentChat(limit int) ([]*store.ChatMessage, error) {
	return h.store.RecentChatMessages(limit)
}
