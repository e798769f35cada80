package oneday

import (
	"log/slog"
)

func (app *App) onConnectionOpened(connID int) {
	app.logger.Debug("connection opened", slog.Int("connection", connID))
}

// onConnectionClosed performs the implicit cancel/leave cascade for a
// dropped connection and notifies the rooms the user was in.
func (app *App) onConnectionClosed(connID int) {
	result, err := app.chatService.Disconnect(app.context, connID)
	if err != nil {
		app.logger.Error("disconnect cleanup failed", slog.Int("connection", connID),
			slog.String("error", err.Error()))
		return
	}
	if result.Session == nil {
		return
	}

	for _, left := range result.Left {
		app.eventRouter.EmitTo(UserLeftEvent, UserLeftPayload{
			UserID:   left.Member.UserID,
			Nickname: left.Member.Nickname,
		}, connIDs(left.Others)...)
	}
}
