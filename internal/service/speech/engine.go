package speech

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngineUnavailable 表示当前运行环境没有可用的语音引擎。
var ErrEngineUnavailable = errors.New("speech engine unavailable")

// Synthesizer 朗读一段文本，阻塞直到播放结束或 ctx 被取消。
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Recognizer 开启一次连续识别会话。会话结束时返回的 channel 会被关闭，
// 取消 ctx 即可主动结束会话。
type Recognizer interface {
	Start(ctx context.Context) (<-chan RecognitionEvent, error)
}

// RecognitionEvent 是识别会话产生的一条结果或错误。
type RecognitionEvent struct {
	Text  string
	Final bool
	Err   *RecognitionError
}

// RecognitionCode 对齐浏览器识别引擎的错误分类。
type RecognitionCode string

const (
	CodeNotAllowed        RecognitionCode = "not-allowed"
	CodeServiceNotAllowed RecognitionCode = "service-not-allowed"
	CodeNoSpeech          RecognitionCode = "no-speech"
	CodeAborted           RecognitionCode = "aborted"
	CodeNetwork           RecognitionCode = "network"
	CodeAudioCapture      RecognitionCode = "audio-capture"
	CodeUnknown           RecognitionCode = "unknown"
)

// RecognitionError 携带错误分类。
type RecognitionError struct {
	Code RecognitionCode
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recognition error: %s", e.Code)
	}
	return fmt.Sprintf("recognition error %s: %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// Fatal 权限类错误不可自动恢复。
func (e *RecognitionError) Fatal() bool {
	return e.Code == CodeNotAllowed || e.Code == CodeServiceNotAllowed
}

// NewRecognitionError 便于引擎实现构造错误。
func NewRecognitionError(code RecognitionCode, err error) *RecognitionError {
	return &RecognitionError{Code: code, Err: err}
}
