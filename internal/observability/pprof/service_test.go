package pprof

import (
	"context"
	"net/http"
	"runtime"
	"testing"
	"time"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil && resp != nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestReconfigureEnableDisable(t *testing.T) {
	svc := New(Config{}, logx.Nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })

	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		_ = runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	svc.Reconfigure(ctx, Config{
		Enabled:              true,
		Addr:                 "127.0.0.1:0",
		MutexProfileFraction: 7,
		BlockProfileRate:     1,
	})

	deadline := time.Now().Add(2 * time.Second)
	for svc.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	addr := svc.Addr()
	if addr == "" {
		t.Fatal("expected pprof server to expose an address")
	}
	if err := waitForHTTP(ctx, "http://"+addr+"/debug/pprof/"); err != nil {
		t.Fatalf("pprof endpoint not reachable: %v", err)
	}
	if got := runtime.SetMutexProfileFraction(-1); got != 7 {
		t.Fatalf("mutex profile fraction = %d, want 7", got)
	}

	svc.Reconfigure(ctx, Config{Enabled: false})
	if addr := svc.Addr(); addr != "" {
		t.Fatalf("expected pprof server to stop, still at %s", addr)
	}
}

func TestInsecureBindRefused(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	err := svc.serveOnce(context.Background())
	if err == nil {
		t.Fatal("expected refusal for unauthenticated non-loopback bind")
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	svc := New(Config{}, logx.Nop())
	calls := 0
	h := svc.withAuth("s3cret", func(w http.ResponseWriter, r *http.Request) { calls++ })

	req, _ := http.NewRequest(http.MethodGet, "http://x/debug/pprof/?token=s3cret", nil)
	h(noopWriter{}, req)
	if calls != 1 {
		t.Fatal("valid query token rejected")
	}

	req, _ = http.NewRequest(http.MethodGet, "http://x/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h(noopWriter{}, req)
	if calls != 2 {
		t.Fatal("valid bearer token rejected")
	}

	req, _ = http.NewRequest(http.MethodGet, "http://x/debug/pprof/?token=wrong", nil)
	h(noopWriter{}, req)
	if calls != 2 {
		t.Fatal("invalid token accepted")
	}
}

type noopWriter struct{}

func (noopWriter) Header() http.Header       { return http.Header{} }
func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
func (noopWriter) WriteHeader(int)           {}
