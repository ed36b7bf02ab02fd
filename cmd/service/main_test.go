package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kjstillabower/nurse-directory/internal/cache"
	"github.com/kjstillabower/nurse-directory/internal/config"
	"github.com/kjstillabower/nurse-directory/internal/models"
)

// main itself is wiring only; newCache is the one branch worth covering here.
func TestNewCache_InMemory(t *testing.T) {
	c, closer, err := newCache(&config.Config{CacheBackend: "in_memory"})
	if err != nil {
		t.Fatalf("newCache() error = %v", err)
	}
	if c.Backend() != "in_memory" {
		t.Errorf("Backend() = %q", c.Backend())
	}
	if closer != nil {
		t.Error("in-memory cache returned a closer")
	}
}

func TestNewCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, closer, err := newCache(&config.Config{
		CacheBackend: "redis",
		RedisAddr:    mr.Addr(),
		RedisTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("newCache() error = %v", err)
	}
	defer func() { _ = closer() }()

	if _, ok := c.(cache.Pinger); !ok {
		t.Fatal("redis cache does not implement Pinger")
	}
	ctx := context.Background()
	if err := c.Set(ctx, "cairo", models.CityInfo{Name: "Cairo"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "cairo")
	if err != nil || !ok || got.Name != "Cairo" {
		t.Errorf("Get() = %+v, %v, %v", got, ok, err)
	}
}

func TestNewCache_Memcached(t *testing.T) {
	c, closer, err := newCache(&config.Config{CacheBackend: "memcached", MemcachedAddrs: "127.0.0.1:11211"})
	if err != nil {
		t.Fatalf("newCache() error = %v", err)
	}
	if c.Backend() != "memcached" {
		t.Errorf("Backend() = %q", c.Backend())
	}
	if closer == nil {
		t.Error("memcached cache returned no closer")
	}
}
