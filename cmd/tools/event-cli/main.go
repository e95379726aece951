package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/chunk-activity-tracker/internal/api"
	"github.com/annel0/chunk-activity-tracker/internal/auth"
	"github.com/annel0/chunk-activity-tracker/internal/ingest"
)

const (
	defaultNATSURL = "nats://localhost:4222"
	defaultAPIURL  = "http://localhost:8090"
)

// sender доставляет событие трекеру и возвращает ответ
type sender interface {
	Send(eventType string, event interface{}) ([]byte, error)
	Close()
}

func main() {
	var (
		transport = flag.String("transport", "nats", "Transport: nats, http")
		natsURL   = flag.String("nats", defaultNATSURL, "NATS server URL")
		prefix    = flag.String("prefix", "activity", "NATS subject prefix")
		apiURL    = flag.String("api", defaultAPIURL, "REST API base URL")
		secret    = flag.String("webhook-secret", os.Getenv("ACTIVITY_WEBHOOK_SECRET"), "HMAC secret for HTTP events")
		adminKey  = flag.String("admin-key", os.Getenv("ACTIVITY_ADMIN_KEY"), "X-Admin-Key for HTTP save/stop")
		command   = flag.String("cmd", "tick", "Command: tick, block, walk, save, stop, token, hash-key")
		dimension = flag.String("dim", "minecraft:overworld", "Dimension")
		players   = flag.String("players", "", "Visitors as uuid@x,y,z separated by ';' (empty - one random visitor at 0,64,0)")
		ticks     = flag.Int("ticks", 100, "Number of ticks for walk")
		interval  = flag.Duration("interval", 50*time.Millisecond, "Tick interval for walk")
		subject   = flag.String("subject", "ops", "Token subject")
		ttl       = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		timeout   = flag.Duration("timeout", 2*time.Second, "Request timeout")
	)
	flag.Parse()

	// Команды без транспорта
	switch *command {
	case "token":
		if err := printToken(*subject, *ttl); err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		return
	case "hash-key":
		if err := printKeyHash(flag.Arg(0)); err != nil {
			log.Fatalf("❌ Hash failed: %v", err)
		}
		return
	}

	positions, err := parsePlayers(*players, *dimension)
	if err != nil {
		log.Fatalf("❌ Invalid players: %v", err)
	}

	var s sender
	switch *transport {
	case "nats":
		pub, err := ingest.NewPublisher(*natsURL, *prefix)
		if err != nil {
			log.Fatalf("❌ Failed to connect to NATS: %v", err)
		}
		s = &natsSender{pub: pub, timeout: *timeout}
	case "http":
		s = &httpSender{
			base:     strings.TrimRight(*apiURL, "/"),
			secret:   *secret,
			adminKey: *adminKey,
			client:   &http.Client{Timeout: *timeout},
		}
	default:
		log.Fatalf("❌ Unknown transport: %s", *transport)
	}
	defer s.Close()

	switch *command {
	case "tick":
		send(s, ingest.EventTick, ingest.TickEvent{Players: positions})

	case "block":
		for _, p := range positions {
			send(s, ingest.EventBlock, ingest.BlockEvent{VisitorPosition: p})
		}

	case "walk":
		walk(s, positions, *ticks, *interval)

	case "save":
		send(s, ingest.EventSave, struct{}{})

	case "stop":
		send(s, ingest.EventStop, struct{}{})

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(1)
	}
}

func send(s sender, eventType string, event interface{}) {
	resp, err := s.Send(eventType, event)
	if err != nil {
		log.Fatalf("❌ %s failed: %v", eventType, err)
	}
	fmt.Printf("📨 %s -> %s\n", eventType, strings.TrimSpace(string(resp)))
}

// walk шлёт тики с частотой interval, сдвигая посетителей на блок по X каждые 20 тиков
func walk(s sender, positions []ingest.VisitorPosition, ticks int, interval time.Duration) {
	fmt.Printf("🚶 Walking %d visitors for %d ticks (interval %s)\n", len(positions), ticks, interval)

	accepted := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < ticks; i++ {
		if i > 0 && i%20 == 0 {
			for j := range positions {
				positions[j].X++
			}
		}

		resp, err := s.Send(ingest.EventTick, ingest.TickEvent{Players: positions})
		if err != nil {
			log.Fatalf("❌ Tick %d failed: %v", i, err)
		}
		if tickAccepted(resp) {
			accepted++
		}
		<-ticker.C
	}

	fmt.Printf("\n📊 Ticks sent: %d, accepted: %d\n", ticks, accepted)
}

// tickAccepted разбирает ответ NATS ({"result": ...}) или HTTP ({"data": ...})
func tickAccepted(resp []byte) bool {
	var wrapped struct {
		Result *ingest.Result `json:"result"`
		Data   *ingest.Result `json:"data"`
	}
	if err := json.Unmarshal(resp, &wrapped); err != nil {
		return false
	}
	switch {
	case wrapped.Result != nil:
		return wrapped.Result.Accepted
	case wrapped.Data != nil:
		return wrapped.Data.Accepted
	}
	return false
}

// parsePlayers разбирает "uuid@x,y,z;uuid@x,y,z"
func parsePlayers(s, dimension string) ([]ingest.VisitorPosition, error) {
	if s == "" {
		return []ingest.VisitorPosition{{Dimension: dimension, Visitor: uuid.New(), Y: 64}}, nil
	}

	var result []ingest.VisitorPosition
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idStr, coords, ok := strings.Cut(part, "@")
		if !ok {
			return nil, fmt.Errorf("expected uuid@x,y,z, got %q", part)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("visitor %q: %w", idStr, err)
		}

		p := ingest.VisitorPosition{Dimension: dimension, Visitor: id}
		if _, err := fmt.Sscanf(coords, "%d,%d,%d", &p.X, &p.Y, &p.Z); err != nil {
			return nil, fmt.Errorf("coordinates %q: %w", coords, err)
		}
		result = append(result, p)
	}
	return result, nil
}

func printToken(subject string, ttl time.Duration) error {
	secret := os.Getenv("ACTIVITY_ADMIN_SECRET")
	if secret == "" {
		generated, err := auth.GenerateSecureSecret()
		if err != nil {
			return err
		}
		secret = generated
		fmt.Printf("🔑 Generated admin_secret: %s\n", secret)
	}

	issuer, err := auth.NewTokenIssuer(secret)
	if err != nil {
		return err
	}
	token, err := issuer.Generate(subject, auth.ScopeAdmin, ttl)
	if err != nil {
		return err
	}
	fmt.Printf("🎫 Token (%s, expires in %s):\n%s\n", subject, ttl, token)
	return nil
}

func printKeyHash(key string) error {
	if key == "" {
		return fmt.Errorf("usage: event-cli -cmd hash-key <key>")
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Printf("admin_key_hash: %q\n", hash)
	return nil
}

type natsSender struct {
	pub     *ingest.Publisher
	timeout time.Duration
}

func (ns *natsSender) Send(eventType string, event interface{}) ([]byte, error) {
	return ns.pub.Request(eventType, event, ns.timeout)
}

func (ns *natsSender) Close() { ns.pub.Close() }

type httpSender struct {
	base     string
	secret   string
	adminKey string
	client   *http.Client
}

func (hs *httpSender) Send(eventType string, event interface{}) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, hs.base+"/api/events/"+eventType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if hs.secret != "" {
		req.Header.Set(api.SignatureHeader, api.SignBody(hs.secret, body))
	}
	if hs.adminKey != "" {
		req.Header.Set("X-Admin-Key", hs.adminKey)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (hs *httpSender) Close() {}
