// Package kv constrói o cliente do key-value store remoto (Redis / Upstash via rediss://).
//
// O cliente é criado uma vez em main e injetado nos stores; nenhum pacote guarda
// instância global.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jaguar-racing/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured indica que não há URL nem endereço do store.
var ErrNotConfigured = errors.New("kv store not configured (set KV_URL, REDIS_URL or REDIS_ADDR)")

// Options devolve as opções do go-redis para a configuração dada.
func Options(cfg config.StoreConfig) (*redis.Options, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse store url: %w", err)
		}
		return opts, nil
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, ErrNotConfigured
	}
	db := cfg.DB
	if db < 0 {
		db = 0
	}
	return &redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}, nil
}

// Connect cria o cliente e faz um ping curto. Em caso de falha o cliente é fechado.
func Connect(ctx context.Context, cfg config.StoreConfig) (*redis.Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kv ping: %w", err)
	}
	return rdb, nil
}

// Pinger é o mínimo usado pelo healthcheck.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

func Healthy(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return p.Ping(pingCtx).Err() == nil
}
