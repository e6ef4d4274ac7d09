package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"
)

var streamingMediaTypes = map[string]bool{
	"text/event-stream":       true,
	"application/x-ndjson":    true,
	"application/ndjson":      true,
	"application/stream+json": true,
	"application/jsonl":       true,
	"application/x-jsonlines": true,
}

// IsStreaming indica se o Content-Type da resposta é entregue em blocos
// (server-sent events ou JSON delimitado por linha)
func IsStreaming(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return streamingMediaTypes[mediaType]
}

// idleTimeout cancela o contexto quando nenhum progresso acontece dentro do
// prazo. Um prazo zero nunca dispara.
type idleTimeout struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelCauseFunc
	once    sync.Once
}

func withIdleTimeout(parent context.Context, timeout time.Duration) (context.Context, *idleTimeout) {
	ctx, cancel := context.WithCancelCause(parent)
	it := &idleTimeout{timeout: timeout, cancel: cancel}
	if timeout > 0 {
		it.timer = time.AfterFunc(timeout, func() { cancel(context.DeadlineExceeded) })
	}
	return ctx, it
}

func (it *idleTimeout) touch() {
	if it != nil && it.timer != nil {
		it.timer.Reset(it.timeout)
	}
}

func (it *idleTimeout) release() {
	if it == nil {
		return
	}
	it.once.Do(func() {
		if it.timer != nil {
			it.timer.Stop()
		}
		it.cancel(context.Canceled)
	})
}

// wrap marca err como timeout quando foi o prazo de inatividade que
// cancelou a requisição
func (it *idleTimeout) wrap(ctx context.Context, err error) error {
	if it == nil || err == nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

// streamBody renova o prazo de inatividade a cada leitura com dados
type streamBody struct {
	io.ReadCloser
	idle *idleTimeout
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if n > 0 {
		s.idle.touch()
	}
	return n, err
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.idle.release()
	return err
}
