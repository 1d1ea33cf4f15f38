package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/rangedrill"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
)

type scenarioSummaryPayload struct {
	ScenarioID    uint          `json:"scenarioId"`
	Name          string        `json:"name"`
	PositionGroup string        `json:"positionGroup"`
	StackDepth    int           `json:"stackDepth"`
	Summary       stats.Summary `json:"summary"`
}

type rangeStartRequestPayload struct {
	ScenarioID uint `json:"scenarioId"`
}

type rangeSubmitRequestPayload struct {
	ScenarioID  uint              `json:"scenarioId"`
	UserGrid    map[string]string `json:"userGrid"`
	TimeSeconds *int              `json:"timeSeconds"`
}

func (h *httpHandler) handleStatsOverview(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	overview, err := h.drills.Overview(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *httpHandler) handleProblemHands(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	problems, err := h.stats.ProblemHands(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if problems == nil {
		problems = []stats.ProblemHand{}
	}
	c.JSON(http.StatusOK, gin.H{"problemHands": problems})
}

func (h *httpHandler) handleScenarioSummaries(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	owned, err := h.scenarios.ScenariosByCreator(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	ids := make([]uint, 0, len(owned))
	for _, scenario := range owned {
		ids = append(ids, scenario.ID)
	}
	summaries, err := h.stats.ScenarioSummaries(c.Request.Context(), player.ID, ids)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := make([]scenarioSummaryPayload, 0, len(owned))
	for _, scenario := range owned {
		response = append(response, scenarioSummaryPayload{
			ScenarioID:    scenario.ID,
			Name:          scenario.Name,
			PositionGroup: scenario.PositionGroupName(),
			StackDepth:    scenario.StackDepth,
			Summary:       summaries[scenario.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": response})
}

func (h *httpHandler) handleScenarioDetail(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	scenario, err := h.scenarios.Scenario(c.Request.Context(), scenarioID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	detail, err := h.stats.ScenarioDetail(c.Request.Context(), player.ID, scenarioID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scenario": newScenarioPayload(scenario),
		"stats":    detail,
	})
}

func (h *httpHandler) handleGroupStats(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	groups, err := h.scenarios.CreatorGroups(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	summaries, err := h.stats.GroupStats(c.Request.Context(), player.ID, groups)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if summaries == nil {
		summaries = []stats.GroupSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": summaries})
}

func (h *httpHandler) handleRangeStart(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	var request rangeStartRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ScenarioID == 0 {
		writeBadRequest(c, "scenarioId is required")
		return
	}
	brief, err := h.rangeDrill.Start(c.Request.Context(), player.ID, request.ScenarioID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, brief)
}

func (h *httpHandler) handleRangeSubmit(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	var request rangeSubmitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "scenarioId and userGrid are required")
		return
	}
	result, err := h.rangeDrill.Submit(c.Request.Context(), player.ID, rangedrill.Submission{
		ScenarioID:  request.ScenarioID,
		Grid:        request.UserGrid,
		TimeSeconds: request.TimeSeconds,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:      player.ID,
		EventType:   RealtimeEventStatsChanged,
		ScenarioIDs: []uint{request.ScenarioID},
		Timestamp:   h.clock().UTC(),
	})
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleRangeStats(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	report, err := h.rangeDrill.Stats(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
