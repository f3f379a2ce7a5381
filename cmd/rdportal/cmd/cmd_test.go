package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/netcore-rdp/rdportal/internal/config"
	"github.com/netcore-rdp/rdportal/internal/domain/auth"
	"github.com/netcore-rdp/rdportal/internal/domain/gateway"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

const testKey = "4c0b569e4c96df157eee1b65dd0e4d41"

// execute runs the root command with args and returns its stdout.
// Commands share package-level flag state, so these tests are not parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_Registered(t *testing.T) {
	want := []string{"start", "stop", "probe", "token", "gen-key", "hash-key", "config", "version"}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered with rootCmd", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMustDuration(t *testing.T) {
	t.Parallel()

	if got := mustDuration("", time.Hour); got != time.Hour {
		t.Errorf("empty = %v, want default", got)
	}
	if got := mustDuration("30m", time.Hour); got != 30*time.Minute {
		t.Errorf("30m = %v", got)
	}
	if got := mustDuration("soon", time.Second); got != time.Second {
		t.Errorf("invalid = %v, want default", got)
	}
}

func TestDefaultGatewayBaseURL(t *testing.T) {
	t.Parallel()

	cfg := config.GatewayConfig{Scheme: "http", Port: 8080, Path: "/guacamole"}
	if got := defaultGatewayBaseURL(cfg); got != "http://localhost:8080/guacamole" {
		t.Errorf("default = %q", got)
	}
	cfg.Host = "gw.lab"
	cfg.Scheme = "https"
	if got := defaultGatewayBaseURL(cfg); got != "https://gw.lab:8080/guacamole" {
		t.Errorf("configured host = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	got := rateLimit(config.RateLimitConfig{Rate: 30, Burst: 10, Period: "1m"})
	if got.Rate != 30 || got.Burst != 10 || got.Period != time.Minute {
		t.Errorf("rateLimit() = %+v", got)
	}
	if got.Emission() != 2*time.Second {
		t.Errorf("Emission() = %v, want 2s", got.Emission())
	}
}

func TestOpenStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.SessionsConfig
	}{
		{name: "memory", cfg: config.SessionsConfig{Backend: config.BackendMemory}},
		{name: "default", cfg: config.SessionsConfig{}},
		{name: "file", cfg: config.SessionsConfig{Backend: config.BackendFile, StatePath: filepath.Join(dir, "state.json")}},
		{name: "sqlite", cfg: config.SessionsConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "sessions.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			stores, err := openStores(ctx, tt.cfg, discardLogger())
			if err != nil {
				t.Fatalf("openStores() error = %v", err)
			}
			defer stores.close()

			reg := session.NewRegistry(stores.sessions)
			s := &session.Session{ID: session.NewID(), TargetAddress: "10.0.0.5", CreatedAt: time.Now()}
			if err := reg.Create(ctx, s); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if n, err := reg.Count(ctx); err != nil || n != 1 {
				t.Errorf("Count() = %d, %v; want 1", n, err)
			}

			if err := stores.recent.Record(ctx, session.RecentTarget{Owner: "ops", Address: "10.0.0.5", UsedAt: time.Now()}); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			got, err := stores.recent.Recent(ctx, "ops", 5)
			if err != nil || len(got) != 1 || got[0] != "10.0.0.5" {
				t.Errorf("Recent() = %v, %v", got, err)
			}
		})
	}
}

func TestOpenStores_Unknown(t *testing.T) {
	t.Parallel()

	if _, err := openStores(context.Background(), config.SessionsConfig{Backend: "etcd"}, discardLogger()); err == nil {
		t.Fatal("openStores(etcd) returned nil error")
	}
}

func TestKeyValidator(t *testing.T) {
	t.Parallel()

	v, err := keyValidator(config.AuthConfig{})
	if err != nil || v != nil {
		t.Fatalf("no keys: validator = %v, err = %v", v, err)
	}

	v, err = keyValidator(config.AuthConfig{APIKeys: []config.APIKeyConfig{
		{Name: "helpdesk", KeyHash: auth.HashKey("rdp-test-key-0001")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Validate(context.Background(), "rdp-test-key-0001")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id.Name != "helpdesk" {
		t.Errorf("identity = %q, want helpdesk", id.Name)
	}

	if _, err := keyValidator(config.AuthConfig{APIKeys: []config.APIKeyConfig{{Name: "x", KeyHash: "md5:1"}}}); err == nil {
		t.Error("unsupported hash accepted")
	}
}

func TestGenKey(t *testing.T) {
	out, err := execute(t, "gen-key")
	if err != nil {
		t.Fatalf("gen-key error = %v", err)
	}
	key := strings.TrimSpace(out)
	if _, err := gateway.ParseKey(key); err != nil {
		t.Errorf("gen-key output %q is not a valid key: %v", key, err)
	}
}

func TestHashKey(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		scheme auth.HashScheme
	}{
		{name: "argon2id", args: []string{"hash-key", "my-api-key"}, scheme: auth.SchemeArgon2id},
		{name: "sha256", args: []string{"hash-key", "--sha256", "my-api-key"}, scheme: auth.SchemeSHA256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { hashKeySHA256 = false })

			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("hash-key error = %v", err)
			}
			hash := strings.TrimSpace(out)
			if got := auth.DetectHashScheme(hash); got != tt.scheme {
				t.Errorf("scheme = %q, want %q", got, tt.scheme)
			}
			ok, err := auth.VerifyKey("my-api-key", hash)
			if err != nil || !ok {
				t.Errorf("VerifyKey() = %v, %v", ok, err)
			}
		})
	}
}

func TestToken_EncodeInspect(t *testing.T) {
	t.Cleanup(func() {
		tokenKey, tokenIP, tokenUsername, tokenPassword, tokenName = "", "", "", "", ""
	})

	out, err := execute(t, "token", "encode", "--key", testKey, "--ip", "10.0.0.5", "--username", "alice", "--password", "s3cret")
	if err != nil {
		t.Fatalf("token encode error = %v", err)
	}
	token := strings.TrimSpace(out)

	p, err := gateway.DecodePayload(token, testKey)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	conn, ok := p.Connections["RDP 10.0.0.5"]
	if !ok {
		t.Fatalf("connections = %v, want key %q", p.Connections, "RDP 10.0.0.5")
	}
	if conn.Parameters["username"] != "alice" || conn.Parameters["hostname"] != "10.0.0.5" {
		t.Errorf("parameters = %v", conn.Parameters)
	}
	if p.Username != "guest" {
		t.Errorf("gateway user = %q, want guest", p.Username)
	}

	out, err = execute(t, "token", "inspect", "--key", testKey, token)
	if err != nil {
		t.Fatalf("token inspect error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, out)
	}
	if doc["username"] != "guest" {
		t.Errorf("inspect username = %v", doc["username"])
	}

	if _, err := execute(t, "token", "inspect", "--key", strings.Repeat("00", 16), token); err == nil {
		t.Error("inspect with the wrong key succeeded")
	}
}

func TestToken_MissingKey(t *testing.T) {
	t.Setenv("RDPORTAL_GATEWAY_SECRET_KEY", "")
	t.Cleanup(func() { tokenKey, tokenIP = "", "" })

	if _, err := execute(t, "token", "encode", "--ip", "10.0.0.5"); err == nil {
		t.Error("token encode without a key succeeded")
	}
}

func TestProbe(t *testing.T) {
	t.Cleanup(func() {
		probePort = 3389
		probeTimeout = 2 * time.Second
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	out, err := execute(t, "probe", "127.0.0.1", "--port", port, "--timeout", "500ms")
	if err != nil {
		t.Fatalf("probe of a listening port failed: %v", err)
	}
	if !strings.Contains(out, "reachable") {
		t.Errorf("output = %q", out)
	}

	ln.Close()
	if _, err := execute(t, "probe", "127.0.0.1", "--port", port, "--timeout", "200ms"); err == nil {
		t.Error("probe of a closed port succeeded")
	}
}

func TestConfigInit(t *testing.T) {
	t.Cleanup(func() {
		configInitPath = "rdportal.yaml"
		configInitForce = false
	})

	path := filepath.Join(t.TempDir(), "rdportal.yaml")
	if _, err := execute(t, "config", "init", "--path", path); err != nil {
		t.Fatalf("config init error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "secret_key:") {
		t.Errorf("config has no secret key:\n%s", data)
	}

	if _, err := execute(t, "config", "init", "--path", path); err == nil {
		t.Error("config init overwrote an existing file without --force")
	}
	if _, err := execute(t, "config", "init", "--path", path, "--force"); err != nil {
		t.Errorf("config init --force error = %v", err)
	}
}

func TestPIDFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "server.pid")
	if got := readPIDFile(path); got != 0 {
		t.Errorf("missing file = %d, want 0", got)
	}
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if got := readPIDFile(path); got != os.Getpid() {
		t.Errorf("readPIDFile() = %d, want %d", got, os.Getpid())
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := readPIDFile(path); got != 0 {
		t.Errorf("garbage = %d, want 0", got)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "rdportal "+Version) {
		t.Errorf("version output = %q", out)
	}
}
