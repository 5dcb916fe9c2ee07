package models

import (
	"fmt"
	"strings"
)

// ConfigError は入力設定の不備。ネットワーク呼び出しの前に返される
type ConfigError struct {
	Problems []string
}

func NewConfigError(problems ...string) *ConfigError {
	return &ConfigError{Problems: problems}
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// GatewayError はSlack API呼び出しの失敗
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("slack %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ApprovalError はGitHubでの承認失敗。Statusは通信エラー時は0
type ApprovalError struct {
	Status  int
	Message string
	Err     error
}

func (e *ApprovalError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}
