package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// 値をそのまま出力してはいけないキー
var sensitiveSubstrings = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"credential",
	"signature",
	"cookie",
	"bearer",
}

// New はレベルとフォーマットに応じたslogロガーを作成する
// 機密情報らしいキーの値は常に "***" に置き換える
func New(level, format string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stderr
	}

	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

// グループ（Secret.LogValueなど）の中身はキーごとに判定される
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	return a
}

// IsSensitiveKey はログのキー名が機密情報を示すかどうか
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
