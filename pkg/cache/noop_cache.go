package cache

import (
	"context"
	"time"
)

var _ Cache = (*NoOpCache)(nil)

// NoOpCache é usada com cache.enabled=false: toda leitura é um miss e
// nenhuma escrita é retida, então o repositório responde sempre
type NoOpCache struct{}

func (*NoOpCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (*NoOpCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (*NoOpCache) Delete(context.Context, string) error { return nil }

func (*NoOpCache) Clear(context.Context) error { return nil }

func (*NoOpCache) Ping(context.Context) error { return nil }
