package config

import (
	"log/slog"
	"strings"
)

// Secret は値をログや%vで漏らさない文字列
type Secret string

// Value は実際の値を返す（APIクライアントに渡すときだけ使う）
func (s Secret) Value() string {
	return string(s)
}

func (s Secret) Empty() bool {
	return s == ""
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// LogValue は長さだけを出す
func (s Secret) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("length", len(s)))
}

// Shape は診断用に長さとプレフィックスの一致だけを含む属性を返す
func (s Secret) Shape(key, prefix string) slog.Attr {
	attrs := []any{slog.Int("length", len(s))}
	if prefix != "" {
		attrs = append(attrs, slog.Bool("prefix_ok", strings.HasPrefix(string(s), prefix)))
	}
	return slog.Group(key, attrs...)
}
