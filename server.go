package registry

import (
	"github.com/dgraph-io/badger/v4"
)

type ServerConfig struct {
	// Issuer restricts accepted tokens; empty disables the check.
	Issuer string

	// Verifier resolves bearer tokens to principals. Defaults to
	// SubjectVerifier.
	Verifier IdentityVerifier

	// PaymentService is the principal of the payment processor allowed
	// to record ticket sales. Empty means no caller may increment
	// inventory.
	PaymentService string
}

type Server struct {
	db     *badger.DB
	engine *Engine
	cfg    ServerConfig
}

func NewServer(db *badger.DB, cfg ServerConfig) *Server {
	if cfg.Verifier == nil {
		cfg.Verifier = SubjectVerifier
	}

	return &Server{
		db:     db,
		engine: NewEngine(db, nil, nil),
		cfg:    cfg,
	}
}

// Engine exposes the governance engine for hosts that drive it directly.
func (s *Server) Engine() *Engine {
	return s.engine
}
