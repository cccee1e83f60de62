package main

import (
	"context"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"medauth/api/server"
	"medauth/core/audit"
	"medauth/core/ledger"
	"medauth/core/registry"
	"medauth/core/signer"
	"medauth/core/storage"
	"medauth/core/verify"
)

// Default interval between automatic anchor queue flushes
var anchorFlushInterval = 30 * time.Second

func init() {
	godotenv.Load("medauth.env")
	if val := os.Getenv("ANCHOR_FLUSH_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			anchorFlushInterval = time.Duration(secs) * time.Second
		}
	}
}

func main() {
	// Log to file as well as stdout
	if err := os.MkdirAll("logs", 0o755); err == nil {
		logFile, err := os.OpenFile("logs/medauth-node.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stdout, logFile))
		}
	}

	log.Println("🚀 Starting medauth node")

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./medauth_db"
	}
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		log.Fatalf("❌ Failed to open storage at %s: %v", dbPath, err)
	}
	defer store.Close()

	reg := registry.NewStore(store)

	// Ledger selection: external node when LEDGER_URL is set, otherwise an
	// in-process ledger so dev environments run without a chain.
	var client ledger.Client
	if url := os.Getenv("LEDGER_URL"); url != "" {
		timeout := 5 * time.Second
		if val := os.Getenv("LEDGER_TIMEOUT_MS"); val != "" {
			if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
				timeout = time.Duration(ms) * time.Millisecond
			}
		}
		client = ledger.NewHTTPClient(url, os.Getenv("LEDGER_API_KEY"), timeout)
		log.Printf("⛓️  Using external ledger at %s", url)
	} else {
		client = ledger.NewMemoryLedger()
		log.Println("⛓️  LEDGER_URL not set, using in-process ledger")
	}

	anchors := ledger.NewCoordinator(client, store, 0)
	if err := anchors.RestoreQueue(); err != nil {
		log.Printf("[WARN] Could not restore anchor queue: %v", err)
	}

	mode := signer.AnchorMode(os.Getenv("ANCHOR_MODE"))
	if mode == "" {
		mode = signer.AnchorAsync
	}
	signSvc := signer.NewService(reg, anchors, mode)

	auditLog := audit.NewChainLogger(audit.NewStorageSink(store))
	engine := verify.NewEngine(reg, anchors, auditLog)

	// Background anchor flush: retries failed submissions and drains the
	// async queue without blocking issuance.
	go func() {
		ticker := time.NewTicker(anchorFlushInterval)
		defer ticker.Stop()
		for range ticker.C {
			if anchors.PendingCount() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), anchorFlushInterval)
			results := anchors.Flush(ctx)
			cancel()
			ok, failed := 0, 0
			for _, res := range results {
				if res.Err != nil {
					failed++
				} else {
					ok++
				}
			}
			log.Printf("[anchor] flush: %d anchored, %d failed, %d still pending", ok, failed, anchors.PendingCount())
		}
	}()

	srv := server.NewServer(store, reg, signSvc, engine, anchors, auditLog, "")
	if err := srv.Start(); err != nil {
		log.Fatalf("❌ Server exited: %v", err)
	}
}
