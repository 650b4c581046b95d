package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DialOptions 语音服务 WebSocket 连接选项
type DialOptions struct {
	ConnectionTimeout time.Duration
	MaxRetries        int
}

// DefaultDialOptions 默认连接选项
func DefaultDialOptions() DialOptions {
	return DialOptions{
		ConnectionTimeout: 30 * time.Second,
		MaxRetries:        2,
	}
}

// dialError 保留握手阶段的 HTTP 状态码，用于错误分类。
type dialError struct {
	status int
	err    error
}

func (e *dialError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("websocket dial failed (status %d): %v", e.status, e.err)
	}
	return fmt.Sprintf("websocket dial failed: %v", e.err)
}

func (e *dialError) Unwrap() error { return e.err }

// dialWithRetry 建立连接；鉴权失败不重试。
func dialWithRetry(ctx context.Context, opts DialOptions, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.ConnectionTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	attempts := opts.MaxRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}

		dErr := &dialError{err: err}
		if resp != nil {
			dErr.status = resp.StatusCode
		}
		lastErr = dErr
		if !IsRetryableError(dErr) || ctx.Err() != nil {
			break
		}

		delay := time.Duration(i+1) * 500 * time.Millisecond
		log.Printf("[speech] dial %s failed, retrying in %s: %v", url, delay, err)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, nil, lastErr
}

// IsRetryableError 判断错误是否可重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var dErr *dialError
	if errors.As(err, &dErr) {
		return dErr.status == 0 || dErr.status >= http.StatusInternalServerError
	}
	return websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway)
}

// classifyError 把连接/协议错误映射为识别错误码。
func classifyError(err error) RecognitionCode {
	var dErr *dialError
	if errors.As(err, &dErr) {
		switch dErr.status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return CodeServiceNotAllowed
		}
		return CodeNetwork
	}
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return CodeServiceNotAllowed
	case errors.Is(err, context.Canceled):
		return CodeAborted
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return CodeNetwork
	}
	return CodeUnknown
}
