package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/annel0/chunk-activity-tracker/internal/logging"
	"github.com/annel0/chunk-activity-tracker/internal/tracker"
)

// Типы событий; для NATS это последний токен субъекта "<prefix>.<type>"
const (
	EventTick  = "tick"
	EventBlock = "block"
	EventSave  = "save"
	EventStop  = "stop"
)

var (
	ErrUnknownEvent = errors.New("неизвестный тип события")
	ErrBadPayload   = errors.New("неверный формат события")
)

// VisitorPosition положение посетителя в координатах блоков
type VisitorPosition struct {
	Dimension string    `json:"dimension"`
	Visitor   uuid.UUID `json:"visitor"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Z         int       `json:"z"`
}

func (vp VisitorPosition) presence() tracker.Presence {
	return tracker.Presence{
		Dimension: vp.Dimension,
		Visitor:   vp.Visitor,
		X:         vp.X,
		Y:         vp.Y,
		Z:         vp.Z,
	}
}

// TickEvent тик сервера со списком подключённых посетителей
type TickEvent struct {
	Players []VisitorPosition `json:"players"`
}

// BlockEvent посетитель поставил блок
type BlockEvent struct {
	VisitorPosition
}

// Driver точки входа трекера, которые вызывает внешний драйвер
type Driver interface {
	OnServerTick(players []tracker.Presence) bool
	OnBlockPlaced(p tracker.Presence)
	OnWorldSave() error
	OnServerStopped()
}

// Result итог обработки события
type Result struct {
	Event    string `json:"event"`
	Accepted bool   `json:"accepted"`
}

// Handler разбирает события драйвера и вызывает трекер.
// Не зависит от транспорта: используется подписчиком NATS и HTTP-приёмником.
type Handler struct {
	driver Driver
	logger *logging.Logger

	received int64
	failed   int64
}

// NewHandler; logger == nil - логгер компонента "ingest"
func NewHandler(driver Driver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.GetIngestLogger()
	}
	return &Handler{driver: driver, logger: logger}
}

// Handle обрабатывает одно событие типа eventType с JSON-телом payload
func (h *Handler) Handle(eventType string, payload []byte) (Result, error) {
	atomic.AddInt64(&h.received, 1)

	res, err := h.dispatch(eventType, payload)
	if err != nil {
		atomic.AddInt64(&h.failed, 1)
		h.logger.Warn("Событие %q отклонено: %v", eventType, err)
		return Result{Event: eventType}, err
	}
	return res, nil
}

func (h *Handler) dispatch(eventType string, payload []byte) (Result, error) {
	res := Result{Event: eventType, Accepted: true}

	switch eventType {
	case EventTick:
		var ev TickEvent
		if err := decode(payload, &ev); err != nil {
			return res, err
		}
		players := make([]tracker.Presence, 0, len(ev.Players))
		for _, p := range ev.Players {
			players = append(players, p.presence())
		}
		res.Accepted = h.driver.OnServerTick(players)

	case EventBlock:
		var ev BlockEvent
		if err := decode(payload, &ev); err != nil {
			return res, err
		}
		if ev.Dimension == "" || ev.Visitor == uuid.Nil {
			return res, fmt.Errorf("%w: dimension и visitor обязательны", ErrBadPayload)
		}
		h.driver.OnBlockPlaced(ev.presence())

	case EventSave:
		if err := h.driver.OnWorldSave(); err != nil {
			return res, fmt.Errorf("сохранение: %w", err)
		}

	case EventStop:
		h.driver.OnServerStopped()

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	return res, nil
}

func decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return nil
}

// Stats счётчики обработанных событий
func (h *Handler) Stats() map[string]int64 {
	return map[string]int64{
		"received": atomic.LoadInt64(&h.received),
		"failed":   atomic.LoadInt64(&h.failed),
	}
}
