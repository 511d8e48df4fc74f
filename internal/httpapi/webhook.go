package httpapi

import (
	"errors"
	"net/http"

	"call-automation/internal/calls"
	"call-automation/internal/telephony"
	"call-automation/pkg/logger"

	"github.com/gin-gonic/gin"
)

type webhookReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CallTranscript receives the transcript from the call scenario. It always
// answers 200; the outcome is carried in the body.
func (h Handlers) CallTranscript(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := telephony.ParseTranscriptWebhook(c.Request)
	if err != nil {
		log.Warn("transcript webhook rejected", "err", err)
		c.JSON(http.StatusOK, webhookReply{Status: "error", Message: "invalid payload"})
		return
	}
	log = log.With("call_id", payload.CallID)
	text := payload.Text()
	log.Info("transcript webhook received",
		"phone", payload.Phone,
		"duration", payload.DurationSeconds,
		"utterances", len(payload.Transcript),
		"transcript_len", len(text),
	)

	_, err = h.Calls.OnTranscriptReceived(c.Request.Context(), calls.TranscriptDelivery{
		CallID:     payload.CallID,
		Transcript: text,
		Duration:   payload.DurationSeconds,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, webhookReply{Status: "success", Message: "Transcript received"})
	case errors.Is(err, calls.ErrValidation):
		c.JSON(http.StatusOK, webhookReply{Status: "error", Message: "call_id is required"})
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("transcript for unknown call", "err", err)
		c.JSON(http.StatusOK, webhookReply{Status: "error", Message: "Call not found"})
	case errors.Is(err, calls.ErrTranscriptAlreadyReceived):
		c.JSON(http.StatusOK, webhookReply{Status: "error", Message: "Transcript already received"})
	default:
		log.Error("transcript webhook failed", "err", err)
		c.JSON(http.StatusOK, webhookReply{Status: "error", Message: "internal error"})
	}
}
