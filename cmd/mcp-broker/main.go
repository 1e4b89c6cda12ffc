// Command mcp-broker is the process entrypoint: it wires the config store,
// audit logger, snapshot manager, policy engine, and capability services
// into one MCP server and serves it over streamable HTTP.
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/config"
	"github.com/silexa/mcp-broker/internal/mcptools"
	"github.com/silexa/mcp-broker/internal/policy"
	"github.com/silexa/mcp-broker/internal/services/cmdservice"
	"github.com/silexa/mcp-broker/internal/services/fileservice"
	"github.com/silexa/mcp-broker/internal/services/gitservice"
	"github.com/silexa/mcp-broker/internal/services/snapshotservice"
	"github.com/silexa/mcp-broker/internal/snapshot"
)

func main() {
	logger := log.New(os.Stdout, "mcp-broker ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config load: %v", err)
	}

	auditLogger, err := audit.Open(cfg.Snapshot().AuditDBPath)
	if err != nil {
		logger.Fatalf("audit open: %v", err)
	}
	defer auditLogger.Close()

	snapshots, err := snapshot.Open(cfg.Snapshot().SnapshotDir)
	if err != nil {
		logger.Fatalf("snapshot open: %v", err)
	}

	policyEngine := policy.New(cfg)

	svc := mcptools.Services{
		File:     fileservice.New(cfg, auditLogger, policyEngine, snapshots),
		Command:  cmdservice.New(cfg, auditLogger, policyEngine),
		Git:      gitservice.New(auditLogger, policyEngine),
		Snapshot: snapshotservice.New(auditLogger, snapshots),
	}

	impl := &mcp.Implementation{
		Name:    "silexa-mcp-broker",
		Title:   "Silexa Local Capability Broker",
		Version: "0.1.0",
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{HasTools: true})
	mcptools.Register(server, svc)

	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := envOr("ADDR", cfg.Snapshot().ServerAddress)
	logger.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
