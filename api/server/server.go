package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"medauth/core/audit"
	"medauth/core/ledger"
	"medauth/core/registry"
	"medauth/core/signer"
	"medauth/core/storage"
	"medauth/core/verify"
)

// --- Environment Variable Config ---
// All sensitive/configurable values are loaded from environment variables.
// See medauth.env for variable names and dummy values.

var (
	apiKey      string // API key for admin endpoints
	jwtSecret   string // JWT secret for issuer auth
	serverPort  string // Server port (default: 8080)
	enableHTTPS string // Enable HTTPS (true/false)
	tlsCertPath string // TLS certificate path
	tlsKeyPath  string // TLS key path
)

func init() {
	// Load env vars from medauth.env for local/dev; real deployments set
	// them in the environment.
	godotenv.Load("medauth.env")
	apiKey = os.Getenv("API_KEY")
	jwtSecret = os.Getenv("JWT_SECRET")
	serverPort = os.Getenv("SERVER_PORT")
	enableHTTPS = os.Getenv("ENABLE_HTTPS")
	tlsCertPath = os.Getenv("TLS_CERT_PATH")
	tlsKeyPath = os.Getenv("TLS_KEY_PATH")
}

// Server wires the issuance and verification engine to HTTP.
type Server struct {
	store      *storage.Storage
	registry   registry.Registry
	signSvc    *signer.Service
	engine     *verify.Engine
	anchors    *ledger.Coordinator
	auditLog   audit.Logger
	ListenAddr string
}

func NewServer(store *storage.Storage, reg registry.Registry, signSvc *signer.Service, engine *verify.Engine, anchors *ledger.Coordinator, auditLog audit.Logger, listenAddr string) *Server {
	if listenAddr == "" {
		port := serverPort
		if port == "" {
			port = "8080"
		}
		listenAddr = ":" + port
	}
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Server{
		store:      store,
		registry:   reg,
		signSvc:    signSvc,
		engine:     engine,
		anchors:    anchors,
		auditLog:   auditLog,
		ListenAddr: listenAddr,
	}
}

// requireAuth accepts either a valid JWT bearer token or the API key.
// Mutating endpoints (sign, register, revoke, flush) sit behind it;
// verification is public by design, any scanner may call it.
func requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if validJWT(r) || validAPIKey(r) {
			next(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

func validAPIKey(r *http.Request) bool {
	key := r.Header.Get("X-API-Key")
	return key != "" && apiKey != "" && key == apiKey
}

func validJWT(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if jwtSecret == "" {
		return false
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		log.Printf("[WARN] Invalid JWT: %v", err)
		return false
	}
	return true
}

// Routes builds the server's mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/qr/sign", requireAuth(s.HandleSign))
	mux.HandleFunc("/api/qr/verify", s.HandleVerify)
	mux.HandleFunc("/api/issuer/register", requireAuth(s.HandleRegisterIssuer))
	mux.HandleFunc("/api/issuer/revoke", requireAuth(s.HandleRevokeIssuer))
	mux.HandleFunc("/api/anchor/status", s.HandleAnchorStatus)
	mux.HandleFunc("/api/anchor/flush", requireAuth(s.HandleAnchorFlush))

	mux.HandleFunc("/nodehealth", s.HandleNodeHealth)
	mux.HandleFunc("/health/liveness", s.HandleLiveness)
	mux.HandleFunc("/health/readiness", s.HandleReadiness)
	mux.HandleFunc("/status", s.HandleStatus)

	return mux
}

func (s *Server) Start() error {
	mux := s.Routes()
	log.Printf("🌐 medauth API listening on %s", s.ListenAddr)
	if enableHTTPS == "true" && tlsCertPath != "" && tlsKeyPath != "" {
		return http.ListenAndServeTLS(s.ListenAddr, tlsCertPath, tlsKeyPath, mux)
	}
	return http.ListenAndServe(s.ListenAddr, mux)
}
