package engine

import (
	"encoding/json"
	"strings"

	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/notice"
	"github.com/praxisplay/gameroom/internal/route"
	"github.com/praxisplay/gameroom/internal/user"
)

type notificationPayload struct {
	RoomID         string              `json:"room_id"`
	NotificationID string              `json:"notification_id,omitempty"`
	Notification   notice.Notification `json:"notification,omitzero"`
}

type chatPayload struct {
	Target route.Target `json:"target"`
	Text   string       `json:"text"`
	Sender user.User    `json:"sender,omitzero"`
}

type invitePayload struct {
	Link string `json:"link"`
}

// handleNotificationSend stores a room notification and fans it out to the
// members holding the administrator or observer tag, plus the sender.
func (e *Engine) handleNotificationSend(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p notificationPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}

	n := p.Notification
	n.SenderID = sender.ID
	n, err := notice.Normalize(n, e.idGenerator, e.clock)
	if err != nil {
		return errors.Reject(errors.CodeInvalidArgument, "normalize notification: %v", err)
	}

	roster, added, rej := e.dir.AddRoomNotification(p.RoomID, n)
	if rej != nil {
		return rej
	}
	if !added {
		// Duplicate by id: stored copy wins, nothing to announce.
		return nil
	}

	recipients := appendSender(route.NotificationRecipients(roster), sender.ID)
	e.send(recipients, TypeNotificationAdded, notificationPayload{RoomID: p.RoomID, Notification: n})
	return nil
}

func (e *Engine) handleNotificationDelete(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p notificationPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if strings.TrimSpace(p.NotificationID) == "" {
		return errors.Reject(errors.CodeInvalidArgument, "notification id is required")
	}

	if rej := e.dir.DeleteRoomNotification(p.RoomID, p.NotificationID); rej != nil {
		return rej
	}

	roster, rej := e.dir.RoomRoster(p.RoomID)
	if rej != nil {
		return rej
	}
	recipients := appendSender(route.NotificationRecipients(roster), sender.ID)
	e.send(recipients, TypeNotificationDeleted, notificationPayload{RoomID: p.RoomID, NotificationID: p.NotificationID})
	return nil
}

// handleChat resolves the target audience and echoes the message to everyone
// in it, sender included.
func (e *Engine) handleChat(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p chatPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if strings.TrimSpace(p.Text) == "" {
		return errors.Reject(errors.CodeInvalidArgument, "chat text is required")
	}

	recipients, rej := e.resolver.Resolve(p.Target, sender.ID)
	if rej != nil {
		return rej
	}
	e.send(recipients, TypeChatMessage, chatPayload{Target: p.Target, Text: p.Text, Sender: sender})
	return nil
}

// handleInvite pops the next unused invite link for the sender alone.
func (e *Engine) handleInvite(sender user.User) *errors.Rejection {
	link, ok := e.content.PopInviteLink()
	if !ok {
		return errors.Reject(errors.CodeNoInvites, "no invite links remain")
	}
	e.send([]int64{sender.ID}, TypeInviteLink, invitePayload{Link: link})
	return nil
}

func appendSender(recipients []int64, senderID int64) []int64 {
	for _, id := range recipients {
		if id == senderID {
			return recipients
		}
	}
	return append(recipients, senderID)
}
