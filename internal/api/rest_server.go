package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
	"github.com/annel0/chunk-activity-tracker/internal/ingest"
	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/middleware"
	"github.com/annel0/chunk-activity-tracker/internal/terrain"
	"github.com/annel0/chunk-activity-tracker/internal/tracker"
)

// RestServer представляет REST API сервер: точечные запросы статистики и администрирование
type RestServer struct {
	router        *gin.Engine
	httpServer    *http.Server
	tracker       *tracker.Tracker
	events        *ingest.Handler
	metrics       *ServerMetrics
	admin         AdminAuth
	webhookSecret string
	logger        *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    string           // порт для запуска сервера, например ":8090"
	Tracker *tracker.Tracker // источник статистики
	Events  *ingest.Handler  // nil - приём событий по HTTP выключен

	Admin         AdminAuth
	WebhookSecret string

	// Регистр метрик; nil - глобальный регистр Prometheus
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// VisitorStats статистика одного посетителя в чанке
type VisitorStats struct {
	Visitor      uuid.UUID `json:"visitor"`
	Seconds      uint64    `json:"seconds"`
	BlocksPlaced uint32    `json:"blocks_placed"`
}

// ChunkResponse статистика чанка
type ChunkResponse struct {
	Dimension    string         `json:"dimension"`
	X            int32          `json:"x"`
	Z            int32          `json:"z"`
	TotalSeconds uint64         `json:"total_seconds"`
	Visitors     []VisitorStats `json:"visitors"`
	HasHeightmap bool           `json:"has_heightmap"`
	Heights      []int          `json:"heights,omitempty"`
}

// ChunkSummary чанк в списке измерения
type ChunkSummary struct {
	X            int32  `json:"x"`
	Z            int32  `json:"z"`
	TotalSeconds uint64 `json:"total_seconds"`
}

// DimensionInfo загруженное измерение
type DimensionInfo struct {
	Dimension string `json:"dimension"`
	Chunks    int    `json:"chunks"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8090"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("chunk_activity_api"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware("chunk_activity_api", config.Registerer, config.Gatherer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:        router,
		tracker:       config.Tracker,
		events:        config.Events,
		metrics:       NewServerMetrics(),
		admin:         config.Admin,
		webhookSecret: config.WebhookSecret,
		logger:        config.Logger,
	}
	server.httpServer = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if !config.Admin.enabled() {
		config.Logger.Warn("Административные эндпоинты API доступны без авторизации")
	}
	if config.Events != nil && config.WebhookSecret == "" {
		config.Logger.Warn("События по HTTP принимаются без подписи (webhook_secret не задан)")
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	// Health check
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/dimensions", rs.handleDimensions)

	activityGroup := api.Group("/activity/:dimension")
	{
		activityGroup.GET("/chunks", rs.handleChunkList)
		activityGroup.GET("/chunks/:x/:z", rs.handleChunk)
		activityGroup.GET("/chunks/:x/:z/visitors/:visitor", rs.handleVisitor)
	}

	admin := api.Group("/")
	admin.Use(rs.adminMiddleware())
	{
		admin.POST("/activity/save", rs.handleSave)
	}

	if rs.events != nil {
		api.POST("/events/:type", rs.handleEvent)
	}
}

// Handler HTTP-обработчик сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":     "ok",
		"time":       time.Now().Unix(),
		"dimensions": len(rs.tracker.Registry().Dimensions()),
		"process":    rs.metrics.Snapshot(),
	}
	if rs.events != nil {
		health["ingest"] = rs.events.Stats()
	}
	c.JSON(http.StatusOK, health)
}

func (rs *RestServer) handleDimensions(c *gin.Context) {
	registry := rs.tracker.Registry()

	dims := make([]DimensionInfo, 0)
	for _, dim := range registry.Dimensions() {
		store, ok := registry.Lookup(dim)
		if !ok {
			continue
		}
		dims = append(dims, DimensionInfo{Dimension: dim, Chunks: store.Len()})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Загруженные измерения",
		Data:    dims,
	})
}

// handleChunkList все чанки измерения с суммарным временем, по убыванию времени
func (rs *RestServer) handleChunkList(c *gin.Context) {
	dimension := c.Param("dimension")
	store := rs.tracker.Registry().StoreFor(dimension)

	chunks := make([]ChunkSummary, 0, store.Len())
	for _, pos := range store.Chunks() {
		chunks = append(chunks, ChunkSummary{X: pos.X, Z: pos.Z, TotalSeconds: store.TotalTime(pos)})
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].TotalSeconds != chunks[j].TotalSeconds {
			return chunks[i].TotalSeconds > chunks[j].TotalSeconds
		}
		if chunks[i].X != chunks[j].X {
			return chunks[i].X < chunks[j].X
		}
		return chunks[i].Z < chunks[j].Z
	})

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанки измерения " + dimension,
		Data:    chunks,
	})
}

// parseChunk разбирает :x и :z; при ошибке ответ уже отправлен
func parseChunk(c *gin.Context) (activity.ChunkPos, bool) {
	x, errX := strconv.ParseInt(c.Param("x"), 10, 32)
	z, errZ := strconv.ParseInt(c.Param("z"), 10, 32)
	if errX != nil || errZ != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Координаты чанка должны быть 32-битными целыми",
		})
		return activity.ChunkPos{}, false
	}
	return activity.ChunkPos{X: int32(x), Z: int32(z)}, true
}

func (rs *RestServer) handleChunk(c *gin.Context) {
	pos, ok := parseChunk(c)
	if !ok {
		return
	}
	dimension := c.Param("dimension")

	record, ok := rs.tracker.Registry().StoreFor(dimension).GetRecord(pos)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Нет данных об активности в чанке " + pos.String(),
		})
		return
	}

	times := record.VisitorTimes()
	blocks := record.BlockCounts()

	seen := make(map[uuid.UUID]struct{}, len(times)+len(blocks))
	visitors := make([]VisitorStats, 0, len(times)+len(blocks))
	for id := range times {
		seen[id] = struct{}{}
	}
	for id := range blocks {
		seen[id] = struct{}{}
	}
	for id := range seen {
		visitors = append(visitors, VisitorStats{Visitor: id, Seconds: times[id], BlocksPlaced: blocks[id]})
	}
	sort.Slice(visitors, func(i, j int) bool {
		if visitors[i].Seconds != visitors[j].Seconds {
			return visitors[i].Seconds > visitors[j].Seconds
		}
		return visitors[i].Visitor.String() < visitors[j].Visitor.String()
	})

	resp := ChunkResponse{
		Dimension:    dimension,
		X:            pos.X,
		Z:            pos.Z,
		TotalSeconds: record.TotalTime(),
		Visitors:     visitors,
		HasHeightmap: record.HasHeightmap(),
	}
	if resp.HasHeightmap {
		// Снимки в другом формате отдаются только флагом
		if heights, err := terrain.UnpackHeights(record.Heightmap()); err == nil {
			resp.Heights = heights
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Активность в чанке",
		Data:    resp,
	})
}

func (rs *RestServer) handleVisitor(c *gin.Context) {
	pos, ok := parseChunk(c)
	if !ok {
		return
	}
	visitor, err := uuid.Parse(c.Param("visitor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный UUID посетителя",
		})
		return
	}
	dimension := c.Param("dimension")

	var blocks uint32
	if record, ok := rs.tracker.Registry().StoreFor(dimension).GetRecord(pos); ok {
		blocks = record.BlocksPlaced(visitor)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Активность посетителя в чанке",
		Data: VisitorStats{
			Visitor:      visitor,
			Seconds:      rs.tracker.GetVisitorTime(dimension, pos, visitor),
			BlocksPlaced: blocks,
		},
	})
}

func (rs *RestServer) handleSave(c *gin.Context) {
	start := time.Now()
	if err := rs.tracker.SaveAll(); err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Сохранение завершилось с ошибками: " + err.Error(),
		})
		return
	}

	rs.logger.Info("💾 Принудительное сохранение по запросу %s", c.GetString("admin_subject"))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Все измерения сохранены",
		Data: gin.H{
			"dimensions":  rs.tracker.Registry().Dimensions(),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.httpServer.Addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает REST сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}
