package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annel0/chunk-activity-tracker/internal/ingest"
)

// SignatureHeader заголовок с подписью тела события: "sha256=<hex>"
const SignatureHeader = "X-Webhook-Signature"

// handleEvent принимает событие драйвера по HTTP: POST /api/events/:type.
// Альтернатива NATS для драйверов, которые умеют только HTTP.
// События жизненного цикла (save, stop) дополнительно требуют прав администратора:
// stop выгружает хранилища без сохранения.
func (rs *RestServer) handleEvent(c *gin.Context) {
	eventType := c.Param("type")
	if isLifecycleEvent(eventType) && !rs.requireAdmin(c) {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Не удалось прочитать тело запроса",
		})
		return
	}

	if !rs.verifyWebhookSignature(body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, GenericResponse{
			Success: false,
			Message: "Неверная подпись события",
		})
		return
	}

	res, err := rs.events.Handle(eventType, body)
	switch {
	case errors.Is(err, ingest.ErrUnknownEvent):
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: err.Error()})
		return
	case errors.Is(err, ingest.ErrBadPayload):
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Событие обработано",
		Data:    res,
	})
}

func isLifecycleEvent(eventType string) bool {
	return eventType == ingest.EventSave || eventType == ingest.EventStop
}

// SignBody подпись тела события секретом; используется отправителями
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verifyWebhookSignature проверяет подпись webhook
func (rs *RestServer) verifyWebhookSignature(body []byte, signature string) bool {
	if rs.webhookSecret == "" {
		return true // Если секрет не настроен, пропускаем проверку
	}

	expectedSignature := SignBody(rs.webhookSecret, body)
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}
