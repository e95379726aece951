package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации секрета: %v", err)
	}
	ti, err := NewTokenIssuer(secret)
	if err != nil {
		t.Fatalf("Ошибка создания TokenIssuer: %v", err)
	}
	return ti
}

// TestGenerateAndValidate тестирует выпуск и проверку токена
func TestGenerateAndValidate(t *testing.T) {
	ti := newIssuer(t)

	token, err := ti.Generate("ops", ScopeAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	// Проверяем, что токен содержит точки (разделители частей JWT)
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}

	claims, err := ti.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.Subject != "ops" || claims.Scope != ScopeAdmin {
		t.Errorf("Неверные claims: %+v", claims)
	}
}

// TestValidateRejects тестирует отклонение чужих, просроченных и испорченных токенов
func TestValidateRejects(t *testing.T) {
	ti := newIssuer(t)
	other := newIssuer(t)

	foreign, _ := other.Generate("ops", ScopeAdmin, time.Hour)
	expired, _ := ti.Generate("ops", ScopeAdmin, -time.Minute)

	for name, token := range map[string]string{
		"foreign": foreign,
		"expired": expired,
		"garbage": "not.a.token",
		"empty":   "",
	} {
		if _, err := ti.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: ожидалась ErrInvalidToken, получено %v", name, err)
		}
	}
}

func TestNewTokenIssuerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer("c2hvcnQ="); err == nil {
		t.Error("Короткий секрет должен отклоняться")
	}
	if _, err := NewTokenIssuer("%%%"); err == nil {
		t.Error("Секрет не в base64 должен отклоняться")
	}
}

func TestAPIKey(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	if err != nil {
		t.Fatalf("Ошибка хеширования: %v", err)
	}
	if !CheckAPIKey(hash, "s3cret") {
		t.Error("Верный ключ не прошёл проверку")
	}
	if CheckAPIKey(hash, "wrong") {
		t.Error("Неверный ключ прошёл проверку")
	}
}
