package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Environment keys read by applyEnvOverrides.
const (
	EnvRPCURL         = "CRAB_RPC_URL"
	EnvRandomStart    = "RANDOM"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvTelegramToken  = "CRAB_TELEGRAM_TOKEN"
	EnvTelegramChatID = "CRAB_TELEGRAM_CHAT_ID"
	EnvTimescaleDSN   = "CRAB_TIMESCALE_DSN"
)

var overrideKeys = map[string]struct{}{
	EnvRPCURL:         {},
	EnvRandomStart:    {},
	EnvRedisAddr:      {},
	EnvTelegramToken:  {},
	EnvTelegramChatID: {},
	EnvTimescaleDSN:   {},
}

// EnvFile reports what LoadEnv did with a .env file. Values are never kept
// since the file usually carries credentials.
type EnvFile struct {
	Path    string
	Found   bool
	Applied []string
	// Shadowed keys were already set in the process environment.
	Shadowed []string
}

// Overrides lists the applied keys that change the loaded config.
func (f EnvFile) Overrides() []string {
	var out []string
	for _, k := range f.Applied {
		if _, ok := overrideKeys[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// LoadEnv reads a .env file and sets the variables it defines that are not
// already set. A missing file is not an error. Lines may start with
// "export " and values may be quoted.
func LoadEnv(path string) (EnvFile, error) {
	res := EnvFile{Path: path}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}
	defer file.Close()
	res.Found = true

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(text, "export ")
		key, val, ok := strings.Cut(text, "=")
		if !ok {
			return res, fmt.Errorf("%s:%d: expected KEY=VALUE", path, line)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return res, fmt.Errorf("%s:%d: empty key", path, line)
		}
		val = unquote(strings.TrimSpace(val))
		if _, exists := os.LookupEnv(key); exists {
			res.Shadowed = append(res.Shadowed, key)
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return res, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		res.Applied = append(res.Applied, key)
	}
	return res, scanner.Err()
}

func unquote(val string) string {
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			return val[1 : len(val)-1]
		}
	}
	if i := strings.Index(val, " #"); i >= 0 {
		return strings.TrimSpace(val[:i])
	}
	return val
}
