//go:build linux

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/reactor-server/config"
	"github.com/searchktools/reactor-server/logging"
	"github.com/searchktools/reactor-server/store"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("home"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Server.Port = freePort(t)
	cfg.Server.RootDir = root
	cfg.Pool.ThreadPoolSize = 2
	cfg.Pool.InitCapacity = 16
	cfg.Log.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Store.BcryptCost = bcrypt.MinCost
	return cfg
}

// startApp runs a until the test ends
func startApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})

	select {
	case <-a.Engine().Ready():
	case err := <-done:
		t.Fatalf("Run failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine not ready")
	}
	if a.admin != nil {
		waitFor(t, func() bool { return a.AdminAddr() != "" })
	}
}

func post(t *testing.T, addr, path, body string) (int, string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	fmt.Fprintf(conn, "POST %s HTTP/1.1\r\nHost: x\r\nConnection: close\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s",
		path, len(body), body)
	resp, err := nethttp.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func get(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := nethttp.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("GET %s = %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestApp_RegisterLoginAndAdmin(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, WithStore(store.NewMemoryStore(bcrypt.MinCost)))
	if err != nil {
		t.Fatal(err)
	}
	startApp(t, a)
	addr := "127.0.0.1:" + strconv.Itoa(cfg.Server.Port)

	code, body := post(t, addr, PathRegister, "name=alice&password=pw&phone=555")
	if code != 200 {
		t.Fatalf("register = %d %s", code, body)
	}
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil || !res.Success {
		t.Errorf("register body %s, %v", body, err)
	}

	if code, _ := post(t, addr, PathRegister, "name=alice&password=pw&phone=556"); code != 409 {
		t.Errorf("duplicate register = %d, want 409", code)
	}
	if code, _ := post(t, addr, PathLogin, "name=alice&password=pw"); code != 200 {
		t.Errorf("login = %d, want 200", code)
	}
	if code, _ := post(t, addr, PathLogin, "name=alice&password=bad"); code != 401 {
		t.Errorf("bad login = %d, want 401", code)
	}
	if code, _ := post(t, addr, PathLogin, "name=alice"); code != 400 {
		t.Errorf("login without password = %d, want 400", code)
	}

	admin := "http://" + a.AdminAddr()
	metrics := string(get(t, admin+"/metrics"))
	for _, name := range []string{"reactor_conn_accepted_total", "go_goroutines"} {
		if !strings.Contains(metrics, name) {
			t.Errorf("/metrics missing %s", name)
		}
	}

	var stats map[string]any
	if err := json.Unmarshal(get(t, admin+"/debug/stats"), &stats); err != nil {
		t.Fatal(err)
	}
	if _, ok := stats["active_connections"]; !ok {
		t.Errorf("stats JSON missing active_connections: %v", stats)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(get(t, admin+"/debug/stats.pb"), &pb); err != nil {
		t.Fatal(err)
	}
	if got := pb.Fields["addr"].GetStringValue(); got == "" {
		t.Error("stats proto missing addr")
	}
}

func TestApp_ReloadsLogLevelAndMonitor(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "server.toml")
	write := func(level string, monitor bool) {
		content := fmt.Sprintf("[log]\nlevel = %q\n\n[metrics]\nmonitor = %v\n", level, monitor)
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("info", true)

	m := config.NewManager()
	if err := m.LoadFromTOML(file); err != nil {
		t.Fatal(err)
	}
	l, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(context.Background(), cfg,
		WithLogger(l),
		WithStore(store.NewMemoryStore(bcrypt.MinCost)),
		WithConfigFile(file, m),
	)
	if err != nil {
		t.Fatal(err)
	}
	startApp(t, a)

	waitFor(t, func() bool {
		write("debug", false)
		return l.Level() == zapcore.DebugLevel
	})
	waitFor(t, func() bool { return !a.monitor.Enabled() })
}

func TestNew_UnknownStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "redis"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New with an unknown store driver should fail")
	}
}
