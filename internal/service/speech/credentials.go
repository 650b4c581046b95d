package speech

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/voice-interview/client/internal/config"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg config.SpeechConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: 火山引擎语音配置缺少 AppID 或 AccessToken", ErrEngineUnavailable)
	}
	return appID, token, nil
}

// CheckCredentials 在建立连接前校验火山引擎凭据是否齐全。
func CheckCredentials(cfg config.SpeechConfig) error {
	_, _, err := resolveCredentials(cfg)
	return err
}
