package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

type scenarioRequestPayload struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Positions   []string          `json:"positions"`
	StackDepth  int               `json:"stackDepth"`
	Limpers     int               `json:"limpers"`
	Grid        map[string]string `json:"grid"`
}

// scenarioUpdateRequestPayload leaves absent fields unchanged.
type scenarioUpdateRequestPayload struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Positions   []string          `json:"positions"`
	StackDepth  *int              `json:"stackDepth"`
	Limpers     *int              `json:"limpers"`
	Grid        map[string]string `json:"grid"`
}

type gridRequestPayload struct {
	Grid map[string]string `json:"grid"`
}

type scenarioPayload struct {
	ID            uint              `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Positions     []string          `json:"positions"`
	PositionGroup string            `json:"positionGroup"`
	StackDepth    int               `json:"stackDepth"`
	Limpers       int               `json:"limpers"`
	Grid          map[string]string `json:"grid"`
	CreatedAt     int64             `json:"createdAt"`
	UpdatedAt     int64             `json:"updatedAt"`
}

type groupRefPayload struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type scenarioDetailPayload struct {
	scenarioPayload
	Groups []groupRefPayload `json:"groups"`
}

type groupPayload struct {
	ID        uint              `json:"id"`
	Name      string            `json:"name"`
	Active    bool              `json:"active"`
	CreatedAt int64             `json:"createdAt"`
	Scenarios []scenarioPayload `json:"scenarios"`
}

type borderHandsPayload struct {
	ScenarioID  uint           `json:"scenarioId"`
	BorderHands []string       `json:"borderHands"`
	Distances   map[string]int `json:"distances"`
}

type groupRequestPayload struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type groupUpdateRequestPayload struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

type groupSyncRequestPayload struct {
	ScenarioIDs []uint `json:"scenarioIds"`
}

type groupActiveRequestPayload struct {
	Active bool `json:"active"`
}

type groupMemberRequestPayload struct {
	ScenarioID uint `json:"scenarioId"`
}

func newScenarioPayload(scenario scenarios.Scenario) scenarioPayload {
	positions := []string(scenario.Positions)
	if positions == nil {
		positions = []string{}
	}
	return scenarioPayload{
		ID:            scenario.ID,
		Name:          scenario.Name,
		Description:   scenario.Description,
		Positions:     positions,
		PositionGroup: scenario.PositionGroupName(),
		StackDepth:    scenario.StackDepth,
		Limpers:       scenario.Limpers,
		Grid:          scenario.Grid().Map(),
		CreatedAt:     scenario.CreatedAtSeconds,
		UpdatedAt:     scenario.UpdatedAtSeconds,
	}
}

func newGroupPayload(members scenarios.GroupMembers) groupPayload {
	response := groupPayload{
		ID:        members.Group.ID,
		Name:      members.Group.Name,
		Active:    members.Group.IsActive,
		CreatedAt: members.Group.CreatedAtSeconds,
		Scenarios: make([]scenarioPayload, 0, len(members.Scenarios)),
	}
	for _, scenario := range members.Scenarios {
		response.Scenarios = append(response.Scenarios, newScenarioPayload(scenario))
	}
	return response
}

func parsePositions(raw []string) ([]scenarios.Position, error) {
	positions := make([]scenarios.Position, 0, len(raw))
	for _, label := range raw {
		position, err := scenarios.ParsePosition(label)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

func (h *httpHandler) handleListScenarios(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	owned, err := h.scenarios.ScenariosByCreator(c.Request.Context(), player.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := make([]scenarioPayload, 0, len(owned))
	for _, scenario := range owned {
		response = append(response, newScenarioPayload(scenario))
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": response})
}

func (h *httpHandler) handleCreateScenario(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	var request scenarioRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "malformed scenario")
		return
	}
	positions, err := parsePositions(request.Positions)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	grid, err := hands.GridFromMap(request.Grid)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	scenario, err := h.scenarios.CreateScenario(c.Request.Context(), scenarios.Input{
		Name:        request.Name,
		Description: request.Description,
		Positions:   positions,
		StackDepth:  request.StackDepth,
		Limpers:     request.Limpers,
		Grid:        grid,
		CreatedBy:   player.ID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newScenarioPayload(scenario))
}

func (h *httpHandler) handleShowScenario(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	scenario, ok := h.ownedScenario(c, player, scenarioID)
	if !ok {
		return
	}
	memberships, err := h.scenarios.GroupsOf(c.Request.Context(), []uint{scenarioID})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := scenarioDetailPayload{
		scenarioPayload: newScenarioPayload(scenario),
		Groups:          make([]groupRefPayload, 0, len(memberships[scenarioID])),
	}
	for _, group := range memberships[scenarioID] {
		response.Groups = append(response.Groups, groupRefPayload{ID: group.ID, Name: group.Name, Active: group.IsActive})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUpdateScenario(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedScenario(c, player, scenarioID); !ok {
		return
	}
	var request scenarioUpdateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "malformed scenario")
		return
	}
	update := scenarios.Update{
		Name:        request.Name,
		Description: request.Description,
		StackDepth:  request.StackDepth,
		Limpers:     request.Limpers,
	}
	if request.Positions != nil {
		positions, err := parsePositions(request.Positions)
		if err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		update.Positions = positions
	}
	if request.Grid != nil {
		grid, err := hands.GridFromMap(request.Grid)
		if err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		update.Grid = &grid
	}
	scenario, err := h.scenarios.UpdateScenario(c.Request.Context(), scenarioID, update)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newScenarioPayload(scenario))
}

func (h *httpHandler) handleDeleteScenario(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedScenario(c, player, scenarioID); !ok {
		return
	}
	if err := h.scenarios.DeleteScenario(c.Request.Context(), scenarioID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:      player.ID,
		EventType:   RealtimeEventStatsChanged,
		ScenarioIDs: []uint{scenarioID},
		Timestamp:   h.clock().UTC(),
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUpdateGrid(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedScenario(c, player, scenarioID); !ok {
		return
	}
	var request gridRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "grid is required")
		return
	}
	grid, err := hands.GridFromMap(request.Grid)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if err := h.scenarios.UpdateGrid(c.Request.Context(), scenarioID, grid); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.writeBorderHands(c, scenarioID)
}

func (h *httpHandler) handleBorderHands(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedScenario(c, player, scenarioID); !ok {
		return
	}
	h.writeBorderHands(c, scenarioID)
}

func (h *httpHandler) handleRecomputeBorderHands(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	scenarioID, ok := pathID(c)
	if !ok {
		return
	}
	if _, ok := h.ownedScenario(c, player, scenarioID); !ok {
		return
	}
	if err := h.scenarios.ComputeBorderHands(c.Request.Context(), scenarioID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.writeBorderHands(c, scenarioID)
}

func (h *httpHandler) writeBorderHands(c *gin.Context, scenarioID uint) {
	distances, err := h.scenarios.BorderDistances(c.Request.Context(), scenarioID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := borderHandsPayload{
		ScenarioID:  scenarioID,
		BorderHands: []string{},
		Distances:   make(map[string]int, len(distances)),
	}
	for _, hand := range hands.All() {
		distance, found := distances[hand]
		if !found {
			continue
		}
		response.Distances[hand.String()] = distance
		if distance == 0 {
			response.BorderHands = append(response.BorderHands, hand.String())
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	if _, ok := requirePlayer(c); !ok {
		return
	}
	groups, err := h.scenarios.Groups(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := make([]groupPayload, 0, len(groups))
	for _, members := range groups {
		response = append(response, newGroupPayload(members))
	}
	c.JSON(http.StatusOK, gin.H{"groups": response})
}

func (h *httpHandler) handleShowGroup(c *gin.Context) {
	if _, ok := requirePlayer(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	members, err := h.scenarios.Group(c.Request.Context(), groupID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGroupPayload(members))
}

func (h *httpHandler) handleUpdateGroup(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	var request groupUpdateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "malformed group")
		return
	}
	group, err := h.scenarios.UpdateGroup(c.Request.Context(), groupID, scenarios.GroupUpdate{
		Name:     request.Name,
		IsActive: request.Active,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": group.ID, "name": group.Name, "active": group.IsActive})
}

func (h *httpHandler) handleDeleteGroup(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.scenarios.DeleteGroup(c.Request.Context(), groupID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSyncGroupScenarios(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	var request groupSyncRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ScenarioIDs == nil {
		writeBadRequest(c, "scenarioIds is required")
		return
	}
	if err := h.scenarios.SyncGroupScenarios(c.Request.Context(), groupID, request.ScenarioIDs); err != nil {
		h.writeServiceError(c, err)
		return
	}
	members, err := h.scenarios.Group(c.Request.Context(), groupID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGroupPayload(members))
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	var request groupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "name is required")
		return
	}
	group, err := h.scenarios.CreateGroup(c.Request.Context(), request.Name, request.Active)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": group.ID, "name": group.Name, "active": group.IsActive})
}

func (h *httpHandler) handleSetGroupActive(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	var request groupActiveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "active is required")
		return
	}
	if err := h.scenarios.SetGroupActive(c.Request.Context(), groupID, request.Active); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": groupID, "active": request.Active})
}

func (h *httpHandler) handleAddToGroup(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	groupID, ok := pathID(c)
	if !ok {
		return
	}
	var request groupMemberRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ScenarioID == 0 {
		writeBadRequest(c, "scenarioId is required")
		return
	}
	if err := h.scenarios.AddToGroup(c.Request.Context(), groupID, request.ScenarioID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) requireAdmin(c *gin.Context) (users.Player, bool) {
	player, ok := requirePlayer(c)
	if !ok {
		return users.Player{}, false
	}
	if !player.HasRole(users.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return users.Player{}, false
	}
	return player, true
}

// ownedScenario loads the scenario and answers 404 unless the player created it.
func (h *httpHandler) ownedScenario(c *gin.Context, player users.Player, scenarioID uint) (scenarios.Scenario, bool) {
	scenario, err := h.scenarios.Scenario(c.Request.Context(), scenarioID)
	if err != nil {
		h.writeServiceError(c, err)
		return scenarios.Scenario{}, false
	}
	if scenario.CreatedBy != player.ID {
		writeNotFound(c)
		return scenarios.Scenario{}, false
	}
	return scenario, true
}

func pathID(c *gin.Context) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || parsed == 0 {
		writeBadRequest(c, "id must be a positive integer")
		return 0, false
	}
	return uint(parsed), true
}
