package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/app"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/auth"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/database"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

const (
	testSigningSecret = "server-test-secret"
	testCookieName    = "app_session"
	jsonContentType   = "application/json"
)

var premiumRange = map[string]string{"AA": "raise", "KK": "raise", "AKs": "raise"}

// fixedSource always picks the first candidate.
type fixedSource struct{}

func (fixedSource) Float64() float64 { return 0 }

func (fixedSource) IntN(int) int { return 0 }

type testServer struct {
	handler  http.Handler
	services app.Services
	issuer   *auth.TokenIssuer
	realtime *RealtimeDispatcher
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: dsn}, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	services, err := app.NewServices(app.Options{Database: db, Source: fixedSource{}})
	if err != nil {
		t.Fatalf("failed to build services: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		Players:          services.Players,
		Drills:           services.Drills,
		Scenarios:        services.Scenarios,
		Stats:            services.Stats,
		RangeDrill:       services.RangeDrill,
		Realtime:         realtime,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testServer{handler: handler, services: services, issuer: issuer, realtime: realtime}
}

func (s testServer) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(context.Background(), auth.SessionIdentity{UserID: userID, Roles: roles})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}

func mustCreateScenario(t *testing.T, server testServer, token string, grid map[string]string) uint {
	t.Helper()
	recorder := server.do(t, http.MethodPost, "/scenarios", token, map[string]any{
		"name":       "Premium open",
		"positions":  []string{"UTG"},
		"stackDepth": 100,
		"grid":       grid,
	})
	expectStatus(t, recorder, http.StatusCreated)
	var created struct {
		ID uint `json:"id"`
	}
	decodeBody(t, recorder, &created)
	if created.ID == 0 {
		t.Fatal("expected scenario id")
	}
	return created.ID
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing validator error, got %v", err)
	}
}

func TestHealthDoesNotRequireAuthentication(t *testing.T) {
	server := newTestServer(t)
	recorder := server.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, recorder, http.StatusOK)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	server := newTestServer(t)
	for _, path := range []string{"/stats/overview", "/drills/suggestions", "/range-drill/stats"} {
		recorder := server.do(t, http.MethodGet, path, "", nil)
		expectStatus(t, recorder, http.StatusUnauthorized)
	}
}

func TestSessionCookieAuthenticates(t *testing.T) {
	server := newTestServer(t)
	request := httptest.NewRequest(http.MethodGet, "/stats/overview", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: server.token(t, "cookie-user")})
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	expectStatus(t, recorder, http.StatusOK)
}

func TestDrillFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	bob := server.token(t, "bob")
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	start := server.do(t, http.MethodPost, "/drills/start", alice, map[string]any{
		"type":       "scenario",
		"scenarioId": scenarioID,
		"handLimit":  2,
	})
	expectStatus(t, start, http.StatusCreated)
	var started struct {
		SessionID     string `json:"sessionId"`
		ScenarioCount int    `json:"scenarioCount"`
	}
	decodeBody(t, start, &started)
	if started.SessionID == "" || started.ScenarioCount != 1 {
		t.Fatalf("unexpected start payload: %+v", started)
	}
	session := map[string]any{"sessionId": started.SessionID}

	next := server.do(t, http.MethodPost, "/drills/next-hand", alice, session)
	expectStatus(t, next, http.StatusOK)
	var prompt struct {
		Complete bool `json:"complete"`
		Hand     struct {
			Notation string `json:"notation"`
		} `json:"hand"`
		Scenario struct {
			ID uint `json:"id"`
		} `json:"scenario"`
	}
	decodeBody(t, next, &prompt)
	if prompt.Complete || prompt.Hand.Notation == "" || prompt.Scenario.ID != scenarioID {
		t.Fatalf("unexpected prompt: %+v", prompt)
	}

	expectStatus(t, server.do(t, http.MethodPost, "/drills/next-hand", bob, session), http.StatusNotFound)

	type answerPayload struct {
		Correct       bool    `json:"correct"`
		UserAction    string  `json:"userAction"`
		CorrectAction string  `json:"correctAction"`
		MistakeType   *string `json:"mistakeType"`
	}
	answers := []struct {
		hand    string
		action  string
		correct bool
	}{
		{hand: "AA", action: "raise", correct: true},
		{hand: "72o", action: "raise", correct: false},
	}
	for _, answer := range answers {
		recorder := server.do(t, http.MethodPost, "/drills/answer", alice, map[string]any{
			"sessionId":  started.SessionID,
			"hand":       answer.hand,
			"scenarioId": scenarioID,
			"action":     answer.action,
		})
		expectStatus(t, recorder, http.StatusOK)
		var result answerPayload
		decodeBody(t, recorder, &result)
		if result.Correct != answer.correct || result.UserAction != answer.action {
			t.Fatalf("unexpected answer result for %s: %+v", answer.hand, result)
		}
		if answer.correct != (result.MistakeType == nil) {
			t.Fatalf("mistake type mismatch for %s: %+v", answer.hand, result)
		}
	}

	complete := server.do(t, http.MethodPost, "/drills/next-hand", alice, session)
	expectStatus(t, complete, http.StatusOK)
	decodeBody(t, complete, &prompt)
	if !prompt.Complete {
		t.Fatalf("expected drill to be complete after the hand limit, got %s", complete.Body.String())
	}

	end := server.do(t, http.MethodPost, "/drills/end", alice, session)
	expectStatus(t, end, http.StatusOK)
	var summary struct {
		TotalHands   int64 `json:"totalHands"`
		CorrectCount int64 `json:"correctCount"`
		Accuracy     int   `json:"accuracy"`
		Mistakes     []struct {
			Hand string `json:"hand"`
		} `json:"mistakes"`
		Comparison *struct {
			OverallAfter int `json:"overallAfter"`
		} `json:"comparison"`
	}
	decodeBody(t, end, &summary)
	if summary.TotalHands != 2 || summary.CorrectCount != 1 || summary.Accuracy != 50 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Mistakes) != 1 || summary.Mistakes[0].Hand != "72o" {
		t.Fatalf("unexpected mistakes: %+v", summary.Mistakes)
	}
	if summary.Comparison == nil || summary.Comparison.OverallAfter != 50 {
		t.Fatalf("unexpected comparison: %+v", summary.Comparison)
	}

	again := server.do(t, http.MethodPost, "/drills/end", alice, session)
	expectStatus(t, again, http.StatusConflict)
	var failure struct {
		Error string `json:"error"`
	}
	decodeBody(t, again, &failure)
	if failure.Error != "session_ended" {
		t.Fatalf("expected session_ended, got %q", failure.Error)
	}
	late := server.do(t, http.MethodPost, "/drills/answer", alice, map[string]any{
		"sessionId":  started.SessionID,
		"hand":       "KK",
		"scenarioId": scenarioID,
		"action":     "raise",
	})
	expectStatus(t, late, http.StatusConflict)

	overview := server.do(t, http.MethodGet, "/stats/overview", alice, nil)
	expectStatus(t, overview, http.StatusOK)
	var totals struct {
		TotalHands int64 `json:"totalHands"`
		Accuracy   int   `json:"accuracy"`
		Sessions   int64 `json:"sessions"`
	}
	decodeBody(t, overview, &totals)
	if totals.TotalHands != 2 || totals.Accuracy != 50 || totals.Sessions != 1 {
		t.Fatalf("unexpected overview: %+v", totals)
	}
}

func TestDrillRequestValidation(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	start := server.do(t, http.MethodPost, "/drills/start", alice, map[string]any{"type": "scenario", "scenarioId": scenarioID})
	expectStatus(t, start, http.StatusCreated)
	var started struct {
		SessionID string `json:"sessionId"`
	}
	decodeBody(t, start, &started)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "unknown drill type", method: http.MethodPost, path: "/drills/start", body: map[string]any{"type": "weekly"}, status: http.StatusBadRequest},
		{name: "missing scenario", method: http.MethodPost, path: "/drills/start", body: map[string]any{"type": "scenario", "scenarioId": 9999}, status: http.StatusNotFound},
		{name: "missing session id", method: http.MethodPost, path: "/drills/next-hand", body: map[string]any{}, status: http.StatusBadRequest},
		{name: "unknown session", method: http.MethodPost, path: "/drills/end", body: map[string]any{"sessionId": "missing"}, status: http.StatusNotFound},
		{name: "bad hand", method: http.MethodPost, path: "/drills/answer", body: map[string]any{"sessionId": started.SessionID, "hand": "ZZ", "scenarioId": scenarioID, "action": "raise"}, status: http.StatusBadRequest},
		{name: "bad action", method: http.MethodPost, path: "/drills/answer", body: map[string]any{"sessionId": started.SessionID, "hand": "AA", "scenarioId": scenarioID, "action": "shove"}, status: http.StatusBadRequest},
		{name: "bad scenario path", method: http.MethodGet, path: "/stats/scenarios/abc", status: http.StatusBadRequest},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(t, testCase.method, testCase.path, alice, testCase.body)
			expectStatus(t, recorder, testCase.status)
		})
	}
}

func TestBorderHandsAreCreatorOnly(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	bob := server.token(t, "bob")
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)
	path := fmt.Sprintf("/scenarios/%d/border-hands", scenarioID)

	recorder := server.do(t, http.MethodGet, path, alice, nil)
	expectStatus(t, recorder, http.StatusOK)
	var payload struct {
		BorderHands []string       `json:"borderHands"`
		Distances   map[string]int `json:"distances"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.BorderHands) == 0 || len(payload.Distances) != 169 {
		t.Fatalf("unexpected border payload: %+v", payload)
	}
	if payload.Distances["AA"] != 0 {
		t.Fatalf("expected AA on the border of a premium-only range, got %d", payload.Distances["AA"])
	}

	expectStatus(t, server.do(t, http.MethodGet, path, bob, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodPost, path, bob, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodPost, path, alice, nil), http.StatusOK)
}

func TestGroupManagementRequiresAdmin(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	admin := server.token(t, "root", users.RoleAdmin)
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	expectStatus(t, server.do(t, http.MethodPost, "/groups", alice, map[string]any{"name": "Openers", "active": true}), http.StatusForbidden)

	created := server.do(t, http.MethodPost, "/groups", admin, map[string]any{"name": "Openers", "active": true})
	expectStatus(t, created, http.StatusCreated)
	var group struct {
		ID uint `json:"id"`
	}
	decodeBody(t, created, &group)

	expectStatus(t, server.do(t, http.MethodPost, fmt.Sprintf("/groups/%d/scenarios", group.ID), admin, map[string]any{"scenarioId": scenarioID}), http.StatusNoContent)
	expectStatus(t, server.do(t, http.MethodPost, fmt.Sprintf("/groups/%d/scenarios", group.ID+1), admin, map[string]any{"scenarioId": scenarioID}), http.StatusNotFound)

	global := server.do(t, http.MethodPost, "/drills/start", alice, map[string]any{"type": "global"})
	expectStatus(t, global, http.StatusCreated)
	var started struct {
		ScenarioIDs []uint `json:"scenarioIds"`
	}
	decodeBody(t, global, &started)
	if len(started.ScenarioIDs) != 1 || started.ScenarioIDs[0] != scenarioID {
		t.Fatalf("expected the active group scenario, got %v", started.ScenarioIDs)
	}

	expectStatus(t, server.do(t, http.MethodPut, fmt.Sprintf("/groups/%d/active", group.ID), admin, map[string]any{"active": false}), http.StatusOK)
	inactive := server.do(t, http.MethodPost, "/drills/start", alice, map[string]any{"type": "global"})
	expectStatus(t, inactive, http.StatusCreated)
	decodeBody(t, inactive, &started)
	if len(started.ScenarioIDs) != 0 {
		t.Fatalf("expected no scenarios after deactivation, got %v", started.ScenarioIDs)
	}
}

func TestScenarioLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	bob := server.token(t, "bob")
	admin := server.token(t, "root", users.RoleAdmin)
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)
	path := fmt.Sprintf("/scenarios/%d", scenarioID)

	created := server.do(t, http.MethodPost, "/groups", admin, map[string]any{"name": "Openers", "active": true})
	expectStatus(t, created, http.StatusCreated)
	var group struct {
		ID uint `json:"id"`
	}
	decodeBody(t, created, &group)
	expectStatus(t, server.do(t, http.MethodPost, fmt.Sprintf("/groups/%d/scenarios", group.ID), admin, map[string]any{"scenarioId": scenarioID}), http.StatusNoContent)

	shown := server.do(t, http.MethodGet, path, alice, nil)
	expectStatus(t, shown, http.StatusOK)
	var detail struct {
		ID     uint              `json:"id"`
		Name   string            `json:"name"`
		Grid   map[string]string `json:"grid"`
		Groups []struct {
			ID   uint   `json:"id"`
			Name string `json:"name"`
		} `json:"groups"`
	}
	decodeBody(t, shown, &detail)
	if detail.ID != scenarioID || detail.Grid["AA"] != "raise" {
		t.Fatalf("unexpected scenario detail: %s", shown.Body.String())
	}
	if len(detail.Groups) != 1 || detail.Groups[0].ID != group.ID || detail.Groups[0].Name != "Openers" {
		t.Fatalf("expected the scenario to list its group, got %+v", detail.Groups)
	}
	expectStatus(t, server.do(t, http.MethodGet, path, bob, nil), http.StatusNotFound)

	updated := server.do(t, http.MethodPut, path, alice, map[string]any{"name": "Tight open", "stackDepth": 40})
	expectStatus(t, updated, http.StatusOK)
	var metadata struct {
		Name       string            `json:"name"`
		StackDepth int               `json:"stackDepth"`
		Positions  []string          `json:"positions"`
		Grid       map[string]string `json:"grid"`
	}
	decodeBody(t, updated, &metadata)
	if metadata.Name != "Tight open" || metadata.StackDepth != 40 {
		t.Fatalf("unexpected updated scenario: %+v", metadata)
	}
	if len(metadata.Positions) != 1 || metadata.Positions[0] != "UTG" || metadata.Grid["KK"] != "raise" {
		t.Fatalf("expected absent fields to be kept, got %+v", metadata)
	}
	expectStatus(t, server.do(t, http.MethodPut, path, alice, map[string]any{"stackDepth": 0}), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodPut, path, alice, map[string]any{"positions": []string{"DEALER"}}), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodPut, path, bob, map[string]any{"name": "Stolen"}), http.StatusNotFound)

	expectStatus(t, server.do(t, http.MethodDelete, path, bob, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodDelete, path, alice, nil), http.StatusNoContent)
	expectStatus(t, server.do(t, http.MethodGet, path, alice, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodDelete, path, alice, nil), http.StatusNotFound)

	remaining := server.do(t, http.MethodGet, fmt.Sprintf("/groups/%d", group.ID), alice, nil)
	expectStatus(t, remaining, http.StatusOK)
	var members struct {
		Scenarios []struct {
			ID uint `json:"id"`
		} `json:"scenarios"`
	}
	decodeBody(t, remaining, &members)
	if len(members.Scenarios) != 0 {
		t.Fatalf("expected the deleted scenario to leave its group, got %+v", members.Scenarios)
	}
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	admin := server.token(t, "root", users.RoleAdmin)
	first := mustCreateScenario(t, server, alice, premiumRange)
	second := mustCreateScenario(t, server, alice, map[string]string{"AA": "raise"})

	created := server.do(t, http.MethodPost, "/groups", admin, map[string]any{"name": "Openers", "active": true})
	expectStatus(t, created, http.StatusCreated)
	var group struct {
		ID uint `json:"id"`
	}
	decodeBody(t, created, &group)
	path := fmt.Sprintf("/groups/%d", group.ID)
	membersPath := path + "/scenarios"

	expectStatus(t, server.do(t, http.MethodPut, membersPath, alice, map[string]any{"scenarioIds": []uint{first}}), http.StatusForbidden)
	expectStatus(t, server.do(t, http.MethodPut, membersPath, admin, map[string]any{}), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodPut, membersPath, admin, map[string]any{"scenarioIds": []uint{first, second + 100}}), http.StatusNotFound)

	synced := server.do(t, http.MethodPut, membersPath, admin, map[string]any{"scenarioIds": []uint{second, first, second}})
	expectStatus(t, synced, http.StatusOK)
	var payload struct {
		ID        uint   `json:"id"`
		Name      string `json:"name"`
		Active    bool   `json:"active"`
		Scenarios []struct {
			ID uint `json:"id"`
		} `json:"scenarios"`
	}
	decodeBody(t, synced, &payload)
	if len(payload.Scenarios) != 2 || payload.Scenarios[0].ID != first || payload.Scenarios[1].ID != second {
		t.Fatalf("unexpected synced members: %s", synced.Body.String())
	}

	replaced := server.do(t, http.MethodPut, membersPath, admin, map[string]any{"scenarioIds": []uint{second}})
	expectStatus(t, replaced, http.StatusOK)
	decodeBody(t, replaced, &payload)
	if len(payload.Scenarios) != 1 || payload.Scenarios[0].ID != second {
		t.Fatalf("expected sync to replace membership, got %s", replaced.Body.String())
	}

	expectStatus(t, server.do(t, http.MethodPut, path, alice, map[string]any{"name": "Mine"}), http.StatusForbidden)
	expectStatus(t, server.do(t, http.MethodPut, path, admin, map[string]any{"name": "  "}), http.StatusBadRequest)
	renamed := server.do(t, http.MethodPut, path, admin, map[string]any{"name": "Late opens", "active": false})
	expectStatus(t, renamed, http.StatusOK)
	decodeBody(t, renamed, &payload)
	if payload.Name != "Late opens" || payload.Active {
		t.Fatalf("unexpected renamed group: %s", renamed.Body.String())
	}

	listed := server.do(t, http.MethodGet, "/groups", alice, nil)
	expectStatus(t, listed, http.StatusOK)
	var list struct {
		Groups []struct {
			ID        uint   `json:"id"`
			Name      string `json:"name"`
			Active    bool   `json:"active"`
			Scenarios []struct {
				ID uint `json:"id"`
			} `json:"scenarios"`
		} `json:"groups"`
	}
	decodeBody(t, listed, &list)
	if len(list.Groups) != 1 || list.Groups[0].Name != "Late opens" || len(list.Groups[0].Scenarios) != 1 {
		t.Fatalf("unexpected group list: %s", listed.Body.String())
	}

	expectStatus(t, server.do(t, http.MethodDelete, path, alice, nil), http.StatusForbidden)
	expectStatus(t, server.do(t, http.MethodDelete, path, admin, nil), http.StatusNoContent)
	expectStatus(t, server.do(t, http.MethodGet, path, alice, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodDelete, path, admin, nil), http.StatusNotFound)
	expectStatus(t, server.do(t, http.MethodGet, fmt.Sprintf("/scenarios/%d", second), alice, nil), http.StatusOK)
}

func TestGroupStatsOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	bob := server.token(t, "bob")
	admin := server.token(t, "root", users.RoleAdmin)
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	created := server.do(t, http.MethodPost, "/groups", admin, map[string]any{"name": "Openers", "active": true})
	expectStatus(t, created, http.StatusCreated)
	var group struct {
		ID uint `json:"id"`
	}
	decodeBody(t, created, &group)
	expectStatus(t, server.do(t, http.MethodPut, fmt.Sprintf("/groups/%d/scenarios", group.ID), admin, map[string]any{"scenarioIds": []uint{scenarioID}}), http.StatusOK)

	recorder := server.do(t, http.MethodGet, "/stats/groups", alice, nil)
	expectStatus(t, recorder, http.StatusOK)
	var payload struct {
		Groups []struct {
			ID            uint  `json:"id"`
			ScenarioCount int   `json:"scenarioCount"`
			TotalHands    int64 `json:"totalHands"`
			Scenarios     []struct {
				ID uint `json:"id"`
			} `json:"scenarios"`
		} `json:"groups"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Groups) != 1 || payload.Groups[0].ID != group.ID || payload.Groups[0].ScenarioCount != 1 {
		t.Fatalf("unexpected group stats: %s", recorder.Body.String())
	}
	if payload.Groups[0].TotalHands != 0 || payload.Groups[0].Scenarios[0].ID != scenarioID {
		t.Fatalf("unexpected group members: %s", recorder.Body.String())
	}

	other := server.do(t, http.MethodGet, "/stats/groups", bob, nil)
	expectStatus(t, other, http.StatusOK)
	decodeBody(t, other, &payload)
	if len(payload.Groups) != 0 {
		t.Fatalf("expected no groups for a player without scenarios, got %s", other.Body.String())
	}
}

func TestRangeDrillStartOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	started := server.do(t, http.MethodPost, "/range-drill/start", alice, map[string]any{"scenarioId": scenarioID})
	expectStatus(t, started, http.StatusOK)
	var brief map[string]any
	decodeBody(t, started, &brief)
	if brief["id"] != float64(scenarioID) || brief["name"] != "Premium open" {
		t.Fatalf("unexpected brief: %s", started.Body.String())
	}
	if _, leaked := brief["grid"]; leaked {
		t.Fatalf("expected the brief to hide the correct range, got %s", started.Body.String())
	}

	expectStatus(t, server.do(t, http.MethodPost, "/range-drill/start", alice, map[string]any{}), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodPost, "/range-drill/start", server.token(t, "bob"), map[string]any{"scenarioId": scenarioID}), http.StatusNotFound)
}

func TestRangeDrillOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.token(t, "alice")
	scenarioID := mustCreateScenario(t, server, alice, premiumRange)

	submit := server.do(t, http.MethodPost, "/range-drill/submit", alice, map[string]any{
		"scenarioId": scenarioID,
		"userGrid":   premiumRange,
	})
	expectStatus(t, submit, http.StatusOK)
	var result struct {
		Accuracy     float64 `json:"accuracy"`
		CorrectCount int     `json:"correctCount"`
	}
	decodeBody(t, submit, &result)
	if result.Accuracy != 100 || result.CorrectCount != 169 {
		t.Fatalf("unexpected range result: %+v", result)
	}

	expectStatus(t, server.do(t, http.MethodPost, "/range-drill/submit", server.token(t, "bob"), map[string]any{
		"scenarioId": scenarioID,
		"userGrid":   premiumRange,
	}), http.StatusNotFound)

	report := server.do(t, http.MethodGet, "/range-drill/stats", alice, nil)
	expectStatus(t, report, http.StatusOK)
	var stats struct {
		Overall struct {
			TotalAttempts int64 `json:"totalAttempts"`
		} `json:"overall"`
	}
	decodeBody(t, report, &stats)
	if stats.Overall.TotalAttempts != 1 {
		t.Fatalf("unexpected range stats: %s", report.Body.String())
	}
}

func TestStatusForError(t *testing.T) {
	testCases := []struct {
		err    error
		status int
		kind   string
	}{
		{err: apperrors.New("op", "missing", apperrors.ErrNotFound), status: http.StatusNotFound, kind: "not_found"},
		{err: apperrors.ErrInvalidInput, status: http.StatusBadRequest, kind: "invalid_request"},
		{err: errors.Join(apperrors.ErrInvalidConfig, errors.New("bad")), status: http.StatusBadRequest, kind: "invalid_config"},
		{err: apperrors.ErrSessionEnded, status: http.StatusConflict, kind: "session_ended"},
		{err: apperrors.ErrConflict, status: http.StatusConflict, kind: "conflict"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal_error"},
	}
	for _, testCase := range testCases {
		status, kind := statusForError(testCase.err)
		if status != testCase.status || kind != testCase.kind {
			t.Fatalf("%v: expected %d/%s, got %d/%s", testCase.err, testCase.status, testCase.kind, status, kind)
		}
	}
}
