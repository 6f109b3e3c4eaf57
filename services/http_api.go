package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"

	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/reports"
)

const defaultKeyCount = 5

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Store     Store
	Accessory *findmy.Accessory
	Identity  *fmdn.Identity
	Log       *slog.Logger
}

// APIService serves stored track points and upcoming rolling identifiers.
// It registers its routes on the server's router via RegisterRoutes.
type APIService struct {
	cfg *APIConfig
	log *slog.Logger
}

// NewAPIService creates the API component.
func NewAPIService(cfg *APIConfig) *APIService {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &APIService{cfg: cfg, log: cfg.Log}
}

// RegisterRoutes registers the API routes.
func (s *APIService) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.httpLogger)
		r.Get("/locations", s.handleLocations)
		r.Get("/devices", s.handleDevices)
		r.Get("/keys", s.handleKeys)
	})
}

func (s *APIService) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *APIService) handleLocations(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	source := reports.Source(r.URL.Query().Get("source"))
	switch source {
	case "", reports.SourceApple, reports.SourceGoogle:
	default:
		http.Error(w, "invalid source", http.StatusBadRequest)
		return
	}

	locs, err := s.cfg.Store.List(r.Context(), ListFilter{
		Since:  time.Now().Add(-time.Duration(hours) * time.Hour).Unix(),
		Source: source,
	})
	if err != nil {
		s.log.Error("listing locations failed", "err", err)
		http.Error(w, "listing locations failed", http.StatusInternalServerError)
		return
	}
	if locs == nil {
		locs = []reports.Location{}
	}

	s.writeJSON(w, &LocationsResponse{Count: len(locs), Locations: locs})
}

func (s *APIService) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.cfg.Store.Devices(r.Context())
	if err != nil {
		s.log.Error("listing devices failed", "err", err)
		http.Error(w, "listing devices failed", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []DeviceSummary{}
	}

	s.writeJSON(w, &DevicesResponse{Devices: devices})
}

// handleKeys returns the next rolling identifiers for one scheme, starting
// at the current rotation period. Handy for checking what a beacon should
// be advertising right now.
func (s *APIService) handleKeys(w http.ResponseWriter, r *http.Request) {
	count := defaultKeyCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = parsed
	}

	scheme := r.URL.Query().Get("scheme")
	if scheme == "" {
		scheme = string(reports.SourceApple)
	}

	var (
		keys []KeyInfo
		err  error
	)
	switch reports.Source(scheme) {
	case reports.SourceApple:
		keys, err = s.appleKeys(count)
	case reports.SourceGoogle:
		keys, err = s.googleKeys(count)
	default:
		http.Error(w, "invalid scheme", http.StatusBadRequest)
		return
	}
	if err != nil {
		if errors.Is(err, ErrNoKeyMaterial) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.log.Error("deriving keys failed", "scheme", scheme, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, &KeysResponse{Scheme: scheme, Count: len(keys), Keys: keys})
}

func (s *APIService) appleKeys(count int) ([]KeyInfo, error) {
	acc := s.cfg.Accessory
	if acc == nil {
		return nil, fmt.Errorf("%w: apple accessory", ErrNoKeyMaterial)
	}

	from := findmy.CounterAt(time.Now().Unix(), acc.Epoch)
	if from < 0 {
		from = 0
	}
	derived, err := findmy.DeriveKeys(acc.MasterKey, acc.SymmetricKey, from, from+int64(count)-1)
	if err != nil {
		return nil, err
	}

	keys := make([]KeyInfo, 0, len(derived))
	for _, key := range derived {
		keys = append(keys, KeyInfo{
			Scheme:       string(reports.SourceApple),
			Counter:      key.Counter,
			Timestamp:    findmy.SlotTime(key.Counter, acc.Epoch),
			HashedAdvKey: key.HashedAdvKey(),
			BLEAddress:   key.BLEAddress(),
		})
	}
	return keys, nil
}

func (s *APIService) googleKeys(count int) ([]KeyInfo, error) {
	ident := s.cfg.Identity
	if ident == nil {
		return nil, fmt.Errorf("%w: google identity", ErrNoKeyMaterial)
	}

	start := fmdn.MaskTimestamp(time.Now().Unix())
	keys := make([]KeyInfo, 0, count)
	for i := 0; i < count; i++ {
		ts := start + int64(i)*fmdn.EIDRotationSecs
		eph, err := fmdn.ComputeEphemeralID(ident.EIK, ts, fmdn.DefaultBatteryFlags)
		if err != nil {
			return nil, err
		}
		keys = append(keys, KeyInfo{
			Scheme:      string(reports.SourceGoogle),
			Timestamp:   eph.Timestamp,
			EphemeralID: eph.String(),
			TruncatedID: fmt.Sprintf("%x", eph.TruncatedID()),
		})
	}
	return keys, nil
}

func (s *APIService) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response failed", "err", err)
	}
}
