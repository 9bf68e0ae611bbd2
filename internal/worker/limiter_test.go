package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	if l := NewLimiter(10, 5); l.burst != 5 {
		t.Errorf("expected burst 5, got %d", l.burst)
	}
	if l := NewLimiter(10, -1); l.burst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l.burst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	for _, u := range []string{"http://localhost:8080/evidence?k=5", "http://localhost:8080/evidence?k=3", "https://metrics.example.org/journals"} {
		if err := limiter.Wait(ctx, u); err != nil {
			t.Errorf("wait %s failed: %v", u, err)
		}
	}
	if n := limiter.Hosts(); n != 2 {
		t.Errorf("expected 2 hosts, got %d", n)
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	if err := limiter.WaitWithDelay(context.Background(), "http://example.com", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms, got %v", d)
	}
}

func TestLimiter_WaitWithDelay_Cancelled(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.WaitWithDelay(ctx, "http://example.com", time.Minute); err == nil {
		t.Fatal("expected the context to cut the crawl delay short")
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)
	url := "http://example.com"

	if err := limiter.Wait(context.Background(), url); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	// burst 1: the token is spent, the next one is a second away
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, url); err == nil {
		t.Error("expected the second request to exceed the deadline")
	}

	// other hosts have their own budget
	if err := limiter.Wait(ctx, "http://other.com"); err != nil {
		t.Errorf("expected other host to pass, got %v", err)
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("http://example.com:8080/foo")
	if err != nil {
		t.Fatalf("hostOf failed: %v", err)
	}
	if host != "example.com:8080" {
		t.Errorf("expected example.com:8080, got %s", host)
	}

	if _, err := hostOf("::invalid"); err == nil {
		t.Error("expected error for invalid URL")
	}
	if _, err := hostOf("/evidence?k=5"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 10; i++ {
		if err := limiter.Wait(ctx, "http://localhost:8080/evidence"); err != nil {
			t.Fatalf("request %d should pass with limiting disabled: %v", i, err)
		}
	}
}
