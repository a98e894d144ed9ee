// Package main is the entry point for the indecisive server.
//
// indecisive is a file-backed scheduling and grading service: documents
// are stored as JSON files (optionally git-committed), authentication is
// OAuth2 client-credentials, and the API is RESTful HTTP. Configuration
// is read from CLI flags and a .env file in the data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/oauth"
	"github.com/indecisive-app/indecisive/internal/rubrics"
	"github.com/indecisive-app/indecisive/internal/server"
	"github.com/indecisive-app/indecisive/internal/server/handlers"
	"github.com/indecisive-app/indecisive/internal/server/ratelimit"
	"github.com/indecisive-app/indecisive/internal/sessions"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "indecisive: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	seedDir := flag.String("seed-dir", "", "Directory of rubric seed YAML files loaded at startup")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Flags win over .env values.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["seed-dir"] {
		if v := env["SEED_DIR"]; v != "" {
			*seedDir = v
		}
	}

	if err := applyLogLevel(ll, *logLevel); err != nil {
		return err
	}

	// The JWT secret must survive restarts or stored tokens stop
	// validating. Generate one on first run and persist it.
	if env["JWT_SECRET"] == "" {
		env["JWT_SECRET"] = genid.Random(48)
		if err := saveDotEnv(*dataDir, env); err != nil {
			return fmt.Errorf("failed to persist generated JWT secret: %w", err)
		}
		slog.InfoContext(ctx, "Generated JWT secret", "path", filepath.Join(*dataDir, ".env"))
	}
	genid.SetHashSecret(env["HASH_SECRET"])

	gitCommits := false
	if v := env["GIT_COMMITS"]; v != "" {
		gitCommits, err = strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GIT_COMMITS: %q", v)
		}
	}
	lockTimeout, err := envDuration(env, "LOCK_TIMEOUT_MS", time.Millisecond)
	if err != nil {
		return err
	}
	purgeInterval, err := envDuration(env, "PURGE_INTERVAL_S", time.Second)
	if err != nil {
		return err
	}
	tokenTTL, err := envDuration(env, "TOKEN_TTL_S", time.Second)
	if err != nil {
		return err
	}
	if tokenTTL == 0 {
		tokenTTL = oauth.DefaultTokenTTL
	}
	rateRPS := 0.0
	if v := env["RATE_LIMIT_RPS"]; v != "" {
		rateRPS, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %q", v)
		}
	}
	rateBurst := 0
	if v := env["RATE_LIMIT_BURST"]; v != "" {
		rateBurst, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST: %q", v)
		}
	}

	db, err := filedb.New(filepath.Join(*dataDir, "db"), gitCommits)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	locks := mutex.NewTable()
	users := identity.NewService(db, locks, lockTimeout)
	sess := sessions.NewService(db, locks, users, lockTimeout)
	clients := oauth.NewClientService(db, locks, lockTimeout)
	tokens := oauth.NewTokenService(db, locks, clients, env["JWT_SECRET"], tokenTTL, lockTimeout)
	grading := rubrics.NewService(db, locks, lockTimeout)

	if err := bootstrapClients(ctx, clients, env); err != nil {
		return err
	}

	if *seedDir != "" {
		seeded, err := grading.Seed(ctx, *seedDir)
		if err != nil {
			return fmt.Errorf("failed to seed rubrics: %w", err)
		}
		if len(seeded) > 0 {
			slog.InfoContext(ctx, "Seeded rubrics", "count", len(seeded))
		}
	}

	purger := oauth.NewPurger(purgeInterval, func(ctx context.Context) {
		if _, err := tokens.PurgeExpired(ctx); err != nil {
			slog.WarnContext(ctx, "Token purge failed", "err", err)
		}
	})
	defer purger.Stop()

	var limiter *ratelimit.Limiter
	if rateRPS > 0 {
		limiter = ratelimit.NewLimiter(rateRPS, rateBurst)
		defer limiter.Close()
	}

	// Reload LOG_LEVEL when .env changes so a running server can be turned
	// verbose without a restart.
	if err := watchDotEnv(ctx, *dataDir, ll); err != nil {
		return fmt.Errorf("failed to watch .env: %w", err)
	}

	svc := &handlers.Services{
		Users:    users,
		Sessions: sess,
		Clients:  clients,
		Tokens:   tokens,
		Rubrics:  grading,
		Purger:   purger,
	}

	// Normalize addr: ":8080" becomes "localhost:8080".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	buildVersion, _, _, _ := getBuildInfo()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, buildVersion, limiter),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion, "gitCommits", gitCommits)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// bootstrapClients seeds the admin and grader clients named in the
// environment. Existing clients are left untouched so rotating a secret
// requires deleting the client first.
func bootstrapClients(ctx context.Context, clients *oauth.ClientService, env map[string]string) error {
	var seeds []oauth.ClientSeed
	pairs := []struct {
		idKey, secretKey, name, scope string
	}{
		{"ADMIN_CLIENT_ID", "ADMIN_CLIENT_SECRET", "Bootstrap admin", oauth.ScopeAdmin},
		{"GRADER_CLIENT_ID", "GRADER_CLIENT_SECRET", "Bootstrap grader", oauth.ScopeGrader},
	}
	for _, p := range pairs {
		id, secret := env[p.idKey], env[p.secretKey]
		if (id == "") != (secret == "") {
			return fmt.Errorf("%s and %s must both be set or both be empty", p.idKey, p.secretKey)
		}
		if id == "" {
			continue
		}
		seeds = append(seeds, oauth.ClientSeed{
			ID:     id,
			Name:   p.name,
			Secret: secret,
			Scopes: []string{p.scope},
		})
	}
	if len(seeds) == 0 {
		return nil
	}
	created, err := clients.Bootstrap(ctx, seeds)
	if err != nil {
		return fmt.Errorf("failed to bootstrap clients: %w", err)
	}
	if len(created) > 0 {
		slog.InfoContext(ctx, "Bootstrapped clients", "ids", created)
	}
	return nil
}

// applyLogLevel parses a level name into the shared level var.
func applyLogLevel(ll *slog.LevelVar, level string) error {
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}
	return nil
}

// envDuration reads an integer environment value scaled by unit. Missing
// or empty keys yield zero, which callers treat as "use the default".
func envDuration(env map[string]string, key string, unit time.Duration) (time.Duration, error) {
	v := env[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("indecisive %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}

		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}

		env[key] = val
	}
	return env, nil
}

func saveDotEnv(dataDir string, env map[string]string) error {
	path := filepath.Join(dataDir, ".env")
	var lines []string
	for k, v := range env {
		if v != "" {
			lines = append(lines, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

// watchDotEnv watches the .env file and applies LOG_LEVEL changes to the
// running server. Other keys still require a restart.
func watchDotEnv(ctx context.Context, dataDir string, ll *slog.LevelVar) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file rather than write it
	// in place, which drops a watch on the file itself.
	if err := w.Add(dataDir); err != nil {
		_ = w.Close()
		return err
	}
	envPath := filepath.Join(dataDir, ".env")
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != envPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				env, err := loadDotEnv(dataDir)
				if err != nil {
					slog.WarnContext(ctx, "Failed to reload .env", "err", err)
					continue
				}
				if v := env["LOG_LEVEL"]; v != "" {
					if err := applyLogLevel(ll, v); err != nil {
						slog.WarnContext(ctx, "Ignoring bad LOG_LEVEL in .env", "err", err)
						continue
					}
					slog.InfoContext(ctx, "Log level updated", "level", v)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching .env", "err", err)
			}
		}
	}()
	return nil
}
