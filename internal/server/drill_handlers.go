package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/drills"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

type startResponsePayload struct {
	SessionID     string        `json:"sessionId"`
	Config        drills.Config `json:"config"`
	ScenarioIDs   []uint        `json:"scenarioIds"`
	ScenarioCount int           `json:"scenarioCount"`
	StartedAt     int64         `json:"startedAt"`
}

type sessionRequestPayload struct {
	SessionID string `json:"sessionId"`
}

type answerRequestPayload struct {
	SessionID  string `json:"sessionId"`
	Hand       string `json:"hand"`
	ScenarioID uint   `json:"scenarioId"`
	Action     string `json:"action"`
}

func (h *httpHandler) handleDrillStart(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	var request drills.Config
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "malformed drill configuration")
		return
	}
	session, err := h.drills.Start(c.Request.Context(), player.ID, request)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	scenarioIDs := []uint(session.ScenarioIDs)
	if scenarioIDs == nil {
		scenarioIDs = []uint{}
	}
	c.JSON(http.StatusCreated, startResponsePayload{
		SessionID:     session.ID,
		Config:        session.Config(),
		ScenarioIDs:   scenarioIDs,
		ScenarioCount: len(scenarioIDs),
		StartedAt:     session.StartedAtSeconds,
	})
}

func (h *httpHandler) handleDrillNextHand(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	sessionID, ok := bindSessionID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedSession(c, player, sessionID); !ok {
		return
	}
	prompt, err := h.drills.NextHand(c.Request.Context(), sessionID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

func (h *httpHandler) handleDrillAnswer(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	var request answerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.SessionID) == "" {
		writeBadRequest(c, "sessionId, hand, scenarioId and action are required")
		return
	}
	hand, err := hands.ParseHand(request.Hand)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	action, err := hands.ParseAction(request.Action)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	sessionID := strings.TrimSpace(request.SessionID)
	if _, ok := h.ownedSession(c, player, sessionID); !ok {
		return
	}

	result, err := h.drills.SubmitAnswer(c.Request.Context(), sessionID, drills.Submission{
		Hand:       hand,
		ScenarioID: request.ScenarioID,
		Action:     action,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:      player.ID,
		EventType:   RealtimeEventStatsChanged,
		SessionID:   sessionID,
		ScenarioIDs: []uint{request.ScenarioID},
		Timestamp:   h.clock().UTC(),
	})
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleDrillEnd(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	sessionID, ok := bindSessionID(c)
	if !ok {
		return
	}
	session, ok := h.ownedSession(c, player, sessionID)
	if !ok {
		return
	}
	summary, err := h.drills.End(c.Request.Context(), sessionID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:      player.ID,
		EventType:   RealtimeEventSessionEnded,
		SessionID:   sessionID,
		ScenarioIDs: []uint(session.ScenarioIDs),
		Timestamp:   h.clock().UTC(),
	})
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleDrillSuggestions(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	suggestions, err := h.drills.Suggestions(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []drills.Suggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func bindSessionID(c *gin.Context) (string, bool) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.SessionID) == "" {
		writeBadRequest(c, "sessionId is required")
		return "", false
	}
	return strings.TrimSpace(request.SessionID), true
}

// ownedSession loads the session and hides sessions of other players behind 404.
func (h *httpHandler) ownedSession(c *gin.Context, player users.Player, sessionID string) (drills.Session, bool) {
	session, err := h.drills.Session(c.Request.Context(), sessionID)
	if err != nil {
		h.writeServiceError(c, err)
		return drills.Session{}, false
	}
	if session.UserID != player.ID {
		writeNotFound(c)
		return drills.Session{}, false
	}
	return session, true
}
