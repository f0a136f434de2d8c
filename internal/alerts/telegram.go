package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crab-rebase-sim/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const telegramBaseURL = "https://api.telegram.org"

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// Summary describes a finished strategy pass.
type Summary struct {
	Strategy         string
	StartBlock       uint64
	EndBlock         uint64
	Rebases          int
	InitialValueUSDC decimal.Decimal
	FinalValueUSDC   decimal.Decimal
}

// Return is the final over initial total value minus one, or zero when the
// initial value is not positive.
func (s Summary) Return() decimal.Decimal {
	if s.InitialValueUSDC.Sign() <= 0 {
		return decimal.Zero
	}
	return s.FinalValueUSDC.Div(s.InitialValueUSDC).Sub(decimal.NewFromInt(1))
}

func (s Summary) Message() string {
	return fmt.Sprintf("crab sim %s finished\nblocks %d-%d\nrebases %d\nvalue %s -> %s USDC (%s%%)",
		s.Strategy,
		s.StartBlock,
		s.EndBlock,
		s.Rebases,
		s.InitialValueUSDC.Shift(-18).StringFixed(2),
		s.FinalValueUSDC.Shift(-18).StringFixed(2),
		s.Return().Mul(decimal.NewFromInt(100)).StringFixed(2),
	)
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log,
	}
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			desc := strings.TrimSpace(result.Description)
			if desc == "" {
				desc = "unknown telegram error"
			}
			return fmt.Errorf("telegram send failed: %s", desc)
		}
	}
	return nil
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.enabled
}

// NotifyFinished sends a run summary. Failures are logged, never returned,
// so a flaky chat cannot fail a finished simulation.
func (t *Telegram) NotifyFinished(ctx context.Context, summary Summary) {
	if !t.Enabled() {
		return
	}
	if err := t.Send(ctx, summary.Message()); err != nil && t.log != nil {
		t.log.Warn("telegram notify failed", zap.String("strategy", summary.Strategy), zap.Error(err))
	}
}
