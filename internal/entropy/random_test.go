package entropy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSeededDeterministic(t *testing.T) {
	a := NewSeeded(7)
	b := NewSeeded(7)
	for i := 0; i < 100; i++ {
		x, y := a.Float(), b.Float()
		if x != y {
			t.Fatalf("draw %d: %v != %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %v", i, x)
		}
	}
	if a.Seed() != 7 {
		t.Errorf("Seed() = %d, want 7", a.Seed())
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence(0.1, 0.2)
	want := []float64{0.1, 0.2, 0.2, 0.2}
	for i, w := range want {
		if got := s.Float(); got != w {
			t.Errorf("draw %d = %v, want %v", i, got, w)
		}
	}
	if s.Drawn() != 2 {
		t.Errorf("Drawn() = %d, want 2", s.Drawn())
	}

	if got := NewSequence().Float(); got != 0 {
		t.Errorf("empty sequence = %v, want 0", got)
	}
}

func TestFixed(t *testing.T) {
	var src Source = Fixed(0.25)
	for i := 0; i < 3; i++ {
		if got := src.Float(); got != 0.25 {
			t.Errorf("Fixed.Float() = %v, want 0.25", got)
		}
	}
}

func TestCryptoRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := Crypto{}.Float()
		if v < 0 || v >= 1 {
			t.Fatalf("crypto float out of range: %v", v)
		}
	}
}

func TestNilClientFallsBack(t *testing.T) {
	if c := NewClient(""); c != nil {
		t.Fatal("NewClient(\"\") should return nil")
	}
	var c *Client
	if c.Enabled() {
		t.Error("nil client should not be enabled")
	}
	v := c.Float()
	if v < 0 || v >= 1 {
		t.Errorf("fallback float out of range: %v", v)
	}
	if _, ok := FromEnv("", 1).(*Seeded); !ok {
		t.Error("FromEnv without key should return a seeded source")
	}
}

func TestClientPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]float64, 20)
		for i := range data {
			data[i] = 0.5
		}
		data[0] = 1.5 // out of range, dropped
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"random": map[string]any{"data": data},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL

	if got := c.Float(); got != 0.5 {
		t.Errorf("Float() = %v, want 0.5", got)
	}
	if c.Fallbacks != 0 {
		t.Errorf("Fallbacks = %d, want 0", c.Fallbacks)
	}
}

func TestClientAPIErrorFallsBack(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL

	v := c.Float()
	if v < 0 || v >= 1 {
		t.Errorf("fallback float out of range: %v", v)
	}
	if c.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", c.Fallbacks)
	}

	// A failed refill backs off instead of retrying on every draw.
	c.Float()
	if calls != 1 {
		t.Errorf("API calls = %d, want 1", calls)
	}
	if c.Fallbacks != 2 {
		t.Errorf("Fallbacks = %d, want 2", c.Fallbacks)
	}
}
