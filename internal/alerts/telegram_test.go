package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crab-rebase-sim/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestTelegramSendDisabled(t *testing.T) {
	cfg := config.TelegramConfig{Enabled: false}
	client := newTelegram(cfg, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestTelegramSendMissingConfig(t *testing.T) {
	cfg := config.TelegramConfig{Enabled: true}
	client := newTelegram(cfg, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing token/chat_id")
	}
}

func TestTelegramSendPostsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected send success, got %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("expected path /bottoken/sendMessage, got %s", gotPath)
	}
	if gotPayload["chat_id"] != "123" {
		t.Fatalf("expected chat_id 123, got %q", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "hello" {
		t.Fatalf("expected text hello, got %q", gotPayload["text"])
	}
}

func TestSummaryMessage(t *testing.T) {
	s := Summary{
		Strategy:         "TwapCollateral175235",
		StartBlock:       14011134,
		EndBlock:         14020000,
		Rebases:          4,
		InitialValueUSDC: decimal.RequireFromString("300000000000000000000000"),
		FinalValueUSDC:   decimal.RequireFromString("315000000000000000000000"),
	}
	want := "crab sim TwapCollateral175235 finished\nblocks 14011134-14020000\nrebases 4\nvalue 300000.00 -> 315000.00 USDC (5.00%)"
	if got := s.Message(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSummaryReturnZeroInitial(t *testing.T) {
	s := Summary{FinalValueUSDC: decimal.NewFromInt(10)}
	if !s.Return().IsZero() {
		t.Fatalf("expected zero return, got %s", s.Return())
	}
}

func TestNotifyFinishedSwallowsErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	client.NotifyFinished(context.Background(), Summary{Strategy: "s"})
	if calls != 1 {
		t.Fatalf("expected 1 request, got %d", calls)
	}
}

func TestNotifyFinishedNilClient(t *testing.T) {
	var client *Telegram
	client.NotifyFinished(context.Background(), Summary{Strategy: "s"})
}
