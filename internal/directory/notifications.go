package directory

import (
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/notice"
	"github.com/praxisplay/gameroom/internal/user"
)

// AddRoomNotification appends a notification to the room's board, dropping
// duplicates by id. It returns a roster copy so the caller can compute
// recipients after the lock is released, and whether the board changed.
func (d *Directory) AddRoomNotification(roomID string, n notice.Notification) ([]user.User, bool, *errors.Rejection) {
	var roster []user.User
	var added bool
	rej := d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		room.Notifications, added = notice.Append(room.Notifications, n)
		roster = append([]user.User(nil), room.Members...)
		return nil
	})
	if rej != nil {
		return nil, false, rej
	}
	return roster, added, nil
}

// DeleteRoomNotification removes a notification from the room's board by id.
func (d *Directory) DeleteRoomNotification(roomID, notificationID string) *errors.Rejection {
	return d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		var removed bool
		room.Notifications, removed = notice.Remove(room.Notifications, notificationID)
		if !removed {
			return errors.Reject(errors.CodeNotificationNotFound, "notification %q is not on room %q", notificationID, roomID)
		}
		return nil
	})
}

// RoomNotifications returns a copy of the room's notification board.
func (d *Directory) RoomNotifications(roomID string) ([]notice.Notification, *errors.Rejection) {
	var notifications []notice.Notification
	rej := d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		notifications = append([]notice.Notification(nil), room.Notifications...)
		return nil
	})
	if rej != nil {
		return nil, rej
	}
	return notifications, nil
}
