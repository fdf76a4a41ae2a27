package intake

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/italolelis/file_poller/internal/logctx"
)

// Handler transforms the content of one claimed file. A non-nil error rolls
// the file back to the failed directory.
type Handler interface {
	Handle(ctx context.Context, lane string, content []byte) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, lane string, content []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, lane string, content []byte) ([]byte, error) {
	return f(ctx, lane, content)
}

// PassthroughHandler logs the content under the lane's name and forwards it
// unchanged.
type PassthroughHandler struct{}

func (PassthroughHandler) Handle(ctx context.Context, lane string, content []byte) ([]byte, error) {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info(title(lane)+" = "+string(content), "content_length", len(content))

	return content, nil
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}

	return string(unicode.ToUpper(r)) + s[size:]
}
