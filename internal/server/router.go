package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/auth"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/drills"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/rangedrill"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

const (
	playerContextKey   = "rangedrill_player"
	accessTokenQuery   = "access_token"
	defaultServiceName = "rangedrill-api"
	defaultHeartbeat   = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingPlayerResolver   = errors.New("player resolver dependency required")
	errMissingDrillService     = errors.New("drill service dependency required")
	errMissingScenarioService  = errors.New("scenario service dependency required")
	errMissingStatsService     = errors.New("stats service dependency required")
	errMissingRangeService     = errors.New("range drill service dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

type PlayerResolver interface {
	Resolve(ctx context.Context, claims auth.SessionClaims) (users.Player, error)
}

type DrillService interface {
	Start(ctx context.Context, userID string, cfg drills.Config) (drills.Session, error)
	Session(ctx context.Context, sessionID string) (drills.Session, error)
	NextHand(ctx context.Context, sessionID string) (drills.HandPrompt, error)
	SubmitAnswer(ctx context.Context, sessionID string, submission drills.Submission) (drills.AnswerResult, error)
	End(ctx context.Context, sessionID string) (drills.Summary, error)
	Overview(ctx context.Context, userID string) (stats.Overview, error)
	Suggestions(ctx context.Context, userID string) ([]drills.Suggestion, error)
}

type ScenarioService interface {
	CreateScenario(ctx context.Context, input scenarios.Input) (scenarios.Scenario, error)
	UpdateGrid(ctx context.Context, scenarioID uint, grid hands.Grid) error
	UpdateScenario(ctx context.Context, scenarioID uint, update scenarios.Update) (scenarios.Scenario, error)
	DeleteScenario(ctx context.Context, scenarioID uint) error
	Scenario(ctx context.Context, scenarioID uint) (scenarios.Scenario, error)
	ScenariosByCreator(ctx context.Context, userID string) ([]scenarios.Scenario, error)
	CreateGroup(ctx context.Context, name string, active bool) (scenarios.Group, error)
	SetGroupActive(ctx context.Context, groupID uint, active bool) error
	AddToGroup(ctx context.Context, groupID, scenarioID uint) error
	Groups(ctx context.Context) ([]scenarios.GroupMembers, error)
	Group(ctx context.Context, groupID uint) (scenarios.GroupMembers, error)
	CreatorGroups(ctx context.Context, userID string) ([]scenarios.GroupMembers, error)
	UpdateGroup(ctx context.Context, groupID uint, update scenarios.GroupUpdate) (scenarios.Group, error)
	DeleteGroup(ctx context.Context, groupID uint) error
	SyncGroupScenarios(ctx context.Context, groupID uint, scenarioIDs []uint) error
	GroupsOf(ctx context.Context, scenarioIDs []uint) (map[uint][]scenarios.Group, error)
	ComputeBorderHands(ctx context.Context, scenarioID uint) error
	BorderDistances(ctx context.Context, scenarioID uint) (map[hands.Hand]int, error)
}

type StatsService interface {
	ProblemHands(ctx context.Context, userID string) ([]stats.ProblemHand, error)
	ScenarioDetail(ctx context.Context, userID string, scenarioID uint) (stats.ScenarioDetail, error)
	ScenarioSummaries(ctx context.Context, userID string, scenarioIDs []uint) (map[uint]stats.Summary, error)
	GroupStats(ctx context.Context, userID string, groups []scenarios.GroupMembers) ([]stats.GroupSummary, error)
}

type RangeDrillService interface {
	Start(ctx context.Context, userID string, scenarioID uint) (rangedrill.Brief, error)
	Submit(ctx context.Context, userID string, submission rangedrill.Submission) (rangedrill.Result, error)
	Stats(ctx context.Context, userID string) (rangedrill.Report, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	Players          PlayerResolver
	Drills           DrillService
	Scenarios        ScenarioService
	Stats            StatsService
	RangeDrill       RangeDrillService
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
	AllowedOrigins   []string
	ServiceName      string
	// HeartbeatInterval paces keep-alive events on the realtime stream.
	HeartbeatInterval time.Duration
	Clock             func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.SessionValidator == nil:
		return nil, errMissingSessionValidator
	case deps.Players == nil:
		return nil, errMissingPlayerResolver
	case deps.Drills == nil:
		return nil, errMissingDrillService
	case deps.Scenarios == nil:
		return nil, errMissingScenarioService
	case deps.Stats == nil:
		return nil, errMissingStatsService
	case deps.RangeDrill == nil:
		return nil, errMissingRangeService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	serviceName := strings.TrimSpace(deps.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		validator:  deps.SessionValidator,
		players:    deps.Players,
		drills:     deps.Drills,
		scenarios:  deps.Scenarios,
		stats:      deps.Stats,
		rangeDrill: deps.RangeDrill,
		realtime:   realtime,
		logger:     logger,
		heartbeat:  heartbeat,
		clock:      clock,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/drills/start", handler.handleDrillStart)
	protected.POST("/drills/next-hand", handler.handleDrillNextHand)
	protected.POST("/drills/answer", handler.handleDrillAnswer)
	protected.POST("/drills/end", handler.handleDrillEnd)
	protected.GET("/drills/suggestions", handler.handleDrillSuggestions)

	protected.GET("/scenarios", handler.handleListScenarios)
	protected.POST("/scenarios", handler.handleCreateScenario)
	protected.GET("/scenarios/:id", handler.handleShowScenario)
	protected.PUT("/scenarios/:id", handler.handleUpdateScenario)
	protected.DELETE("/scenarios/:id", handler.handleDeleteScenario)
	protected.PUT("/scenarios/:id/grid", handler.handleUpdateGrid)
	protected.GET("/scenarios/:id/border-hands", handler.handleBorderHands)
	protected.POST("/scenarios/:id/border-hands", handler.handleRecomputeBorderHands)
	protected.GET("/groups", handler.handleListGroups)
	protected.POST("/groups", handler.handleCreateGroup)
	protected.GET("/groups/:id", handler.handleShowGroup)
	protected.PUT("/groups/:id", handler.handleUpdateGroup)
	protected.DELETE("/groups/:id", handler.handleDeleteGroup)
	protected.PUT("/groups/:id/active", handler.handleSetGroupActive)
	protected.POST("/groups/:id/scenarios", handler.handleAddToGroup)
	protected.PUT("/groups/:id/scenarios", handler.handleSyncGroupScenarios)

	protected.GET("/stats/overview", handler.handleStatsOverview)
	protected.GET("/stats/problem-hands", handler.handleProblemHands)
	protected.GET("/stats/scenarios", handler.handleScenarioSummaries)
	protected.GET("/stats/scenarios/:id", handler.handleScenarioDetail)
	protected.GET("/stats/groups", handler.handleGroupStats)

	protected.POST("/range-drill/start", handler.handleRangeStart)
	protected.POST("/range-drill/submit", handler.handleRangeSubmit)
	protected.GET("/range-drill/stats", handler.handleRangeStats)

	protected.GET("/events", handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	validator  SessionValidator
	players    PlayerResolver
	drills     DrillService
	scenarios  ScenarioService
	stats      StatsService
	rangeDrill RangeDrillService
	realtime   *RealtimeDispatcher
	logger     *zap.Logger
	heartbeat  time.Duration
	clock      func() time.Time
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest accepts the session cookie, a bearer header or, for
// EventSource clients that cannot set headers, an access_token query value.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		if token := strings.TrimSpace(c.Query(accessTokenQuery)); token != "" {
			claims, err = h.validator.ValidateToken(token)
		}
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	player, err := h.players.Resolve(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("player resolution failed", zap.Error(err), zap.String("subject", claims.Subject))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "player_resolution_failed"})
		return
	}
	c.Set(playerContextKey, player)
	c.Next()
}

func currentPlayer(c *gin.Context) (users.Player, bool) {
	value, ok := c.Get(playerContextKey)
	if !ok {
		return users.Player{}, false
	}
	player, ok := value.(users.Player)
	return player, ok && player.ID != ""
}

// requirePlayer writes 401 and reports false when the middleware did not run.
func requirePlayer(c *gin.Context) (users.Player, bool) {
	player, ok := currentPlayer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return player, ok
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_config"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrSessionEnded):
		return http.StatusConflict, "session_ended"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status, kind := statusForError(err)
	body := gin.H{"error": kind}
	if code := apperrors.Code(err); code != "" {
		body["code"] = code
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", apperrors.Code(err)),
			zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}

func writeNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
}
