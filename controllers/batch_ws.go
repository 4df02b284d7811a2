package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"mailscout/models"
	"mailscout/worker"
)

type progressMessage struct {
	Run     *worker.RunState `json:"run,omitempty"`
	Percent int              `json:"percent"`
	Status  string           `json:"status"`
	Error   string           `json:"error,omitempty"`
}

// UpgradeOnly rejects plain HTTP requests to a websocket route.
func UpgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleBatchProgressWS streams the run state of a batch until the run
// completes or the client goes away.
func (bc *BatchController) HandleBatchProgressWS(interval time.Duration) func(*websocket.Conn) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return func(c *websocket.Conn) {
		defer c.Close()
		id := c.Params("id")
		log := bc.Logger.WithField("batch_id", id)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			msg := progressMessage{Status: "running"}
			state, err := bc.Worker.State(id)
			switch {
			case errors.Is(err, worker.ErrNoRun):
				msg.Status = "not_found"
				msg.Error = "batch has not been run"
			case err != nil:
				msg.Status = "error"
				msg.Error = err.Error()
			default:
				msg.Run = &state
				msg.Status = string(state.Status)
				if state.Total > 0 {
					msg.Percent = state.Completed * 100 / state.Total
				}
			}

			if err := c.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("progress stream closed")
				return
			}
			if msg.Status != string(models.BatchRunQueued) && msg.Status != string(models.BatchRunRunning) {
				return
			}
			<-ticker.C
		}
	}
}
