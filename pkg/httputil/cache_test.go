package httputil

import (
	"errors"
	"testing"
	"time"
)

type dims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func TestCacheGetSet(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  string
		val  dims
	}{
		{"png", "https://example.com/a.png", dims{640, 480}},
		{"webp", "https://example.com/b.webp", dims{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Set(tt.key, tt.val); err != nil {
				t.Fatalf("Set: %v", err)
			}
			var got dims
			ok, err := c.Get(tt.key, &got)
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if got != tt.val {
				t.Errorf("got %+v, want %+v", got, tt.val)
			}
		})
	}
}

func TestCacheMissAndDelete(t *testing.T) {
	c, _ := NewCache(t.TempDir(), time.Hour)
	var v dims
	if ok, err := c.Get("missing", &v); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v", ok, err)
	}
	c.Set("k", dims{1, 2})
	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Get("k", &v); ok {
		t.Error("entry survived Delete")
	}
	if err := c.Delete("k"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestCacheExpiration(t *testing.T) {
	c, _ := NewCache(t.TempDir(), 10*time.Millisecond)
	if err := c.Set("key", "value"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	var res string
	ok, err := c.Get("key", &res)
	if !errors.Is(err, ErrExpired) || ok {
		t.Errorf("Get = %v, %v; want false, ErrExpired", ok, err)
	}
}

func TestCacheNamespace(t *testing.T) {
	c, _ := NewCache(t.TempDir(), time.Hour)
	img := c.Namespace("img:")
	other := c.Namespace("other:")

	img.Set("a.png", "img")
	other.Set("a.png", "other")

	var got string
	img.Get("a.png", &got)
	if got != "img" {
		t.Errorf("img namespace = %q", got)
	}
	if ok, _ := c.Get("a.png", &got); ok {
		t.Error("value visible without namespace")
	}

	nested := img.Namespace("v2:")
	nested.Set("a.png", "nested")
	img.Get("a.png", &got)
	if got != "img" {
		t.Error("nested namespace overwrote parent entry")
	}
}
