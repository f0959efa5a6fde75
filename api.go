package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)
	m.Use(handleAuth(s.cfg.Issuer, s.cfg.Verifier))

	m.Get("/config", s.getConfig)
	m.Get("/wallet", s.getWallet)
	m.Get("/fee", s.getFee)
	m.Put("/fee", s.updateFee)
	m.Get("/admins/{id}", s.isAdmin)

	m.Post("/proposals", s.createProposal)
	m.Get("/proposals", s.listActiveProposals)
	m.Get("/proposals/{id}", s.getProposal)
	m.Post("/proposals/{id}/approve", s.approveProposal)
	m.Post("/proposals/{id}/execute", s.executeProposal)

	m.Post("/events", s.registerEvent)
	m.Get("/events", s.listOrganizerEvents)
	m.Get("/events/{id}", s.getEvent)
	m.Get("/events/{id}/payment", s.getEventPaymentInfo)
	m.Put("/events/{id}/status", s.updateEventStatus)
	m.Put("/events/{id}/metadata", s.updateMetadata)
	m.Post("/events/{id}/inventory", s.incrementInventory)

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	_ = twirp.WriteError(w, twirpError(err))
}

func parseAction(s string) Action {
	switch s {
	case "set_wallet":
		return ActionSetWallet
	case "add_admin":
		return ActionAddAdmin
	case "remove_admin":
		return ActionRemoveAdmin
	case "set_threshold":
		return ActionSetThreshold
	default:
		return 0
	}
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Config()
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, cfg)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.engine.Wallet()
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, wallet)
}

func (s *Server) getFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.engine.PlatformFee()
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]int{"fee_bps": fee})
}

func (s *Server) updateFee(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		FeeBps int `json:"fee_bps"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "malformed json"))
		return
	}

	if err := s.engine.SetPlatformFee(principal, body.FeeBps); err != nil {
		slog.Warn("update fee failed", slog.Any("err", err), slog.Int("fee_bps", body.FeeBps))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]int{"fee_bps": body.FeeBps})
}

func (s *Server) isAdmin(w http.ResponseWriter, r *http.Request) {
	ok, err := s.engine.IsAdmin(chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]bool{"is_admin": ok})
}

func (s *Server) createProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		Action     string `json:"action"`
		Wallet     string `json:"wallet"`
		Admin      string `json:"admin"`
		Threshold  int    `json:"threshold"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "malformed json"))
		return
	}

	action := parseAction(body.Action)
	if action == 0 {
		renderErr(w, twirp.InvalidArgumentError("action", "unknown action"))
		return
	}

	change := Change{
		Action:    action,
		Wallet:    body.Wallet,
		Admin:     body.Admin,
		Threshold: body.Threshold,
	}

	id, err := s.engine.CreateProposal(principal, change, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		slog.Warn("create proposal failed", slog.Any("err", err), slog.String("proposer", principal))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]uint64{"id": id})
}

func (s *Server) listActiveProposals(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.ListActiveProposals()
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string][]uint64{"ids": ids})
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	id := cast.ToUint64(chi.URLParam(r, "id"))

	p, err := s.engine.GetProposal(id)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, p)
}

func (s *Server) approveProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id := cast.ToUint64(chi.URLParam(r, "id"))

	if err := s.engine.ApproveProposal(principal, id); err != nil {
		slog.Warn("approve proposal failed", slog.Any("err", err), slog.Uint64("id", id))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]uint64{"id": id})
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id := cast.ToUint64(chi.URLParam(r, "id"))

	if err := s.engine.ExecuteProposal(principal, id); err != nil {
		slog.Warn("execute proposal failed", slog.Any("err", err), slog.Uint64("id", id))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]uint64{"id": id})
}

func (s *Server) registerEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var args RegisterEventArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "malformed json"))
		return
	}

	ev, err := s.engine.RegisterEvent(principal, args)
	if err != nil {
		slog.Warn("register event failed", slog.Any("err", err), slog.String("organizer", principal))
		renderErr(w, err)
		return
	}

	renderJSON(w, ev)
}

func (s *Server) listOrganizerEvents(w http.ResponseWriter, r *http.Request) {
	organizer := r.URL.Query().Get("organizer")
	if organizer == "" {
		if principal, ok := PrincipalFrom(r.Context()); ok {
			organizer = principal
		}
	}

	ids, err := s.engine.ListOrganizerEvents(organizer)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string][]string{"ids": ids})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.GetEvent(chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, ev)
}

func (s *Server) getEventPaymentInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.GetEventPaymentInfo(chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, info)
}

func (s *Server) updateEventStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		Active bool `json:"active"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "malformed json"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.UpdateEventStatus(principal, id, body.Active); err != nil {
		slog.Warn("update event status failed", slog.Any("err", err), slog.String("id", id))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]string{"id": id})
}

func (s *Server) updateMetadata(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		MetadataCID string `json:"metadata_cid"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "malformed json"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.UpdateMetadata(principal, id, body.MetadataCID); err != nil {
		slog.Warn("update metadata failed", slog.Any("err", err), slog.String("id", id))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]string{"id": id})
}

func (s *Server) incrementInventory(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	// Sales are recorded by the payment processor only.
	if s.cfg.PaymentService == "" || principal != s.cfg.PaymentService {
		slog.Warn("inventory caller rejected", "principal", principal)
		renderErr(w, twirp.PermissionDenied.Error("permission denied"))
		return
	}

	id := chi.URLParam(r, "id")
	tier := r.URL.Query().Get("tier")

	supply, err := s.engine.IncrementInventory(id, tier)
	if err != nil {
		slog.Warn("increment inventory failed", slog.Any("err", err), slog.String("id", id))
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]int64{"current_supply": supply})
}
