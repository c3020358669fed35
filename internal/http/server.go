package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"quorum/console/internal/auth"
	"quorum/console/internal/bulk"
	"quorum/console/internal/config"
	"quorum/console/internal/db"
	"quorum/console/internal/issuance"
	"quorum/console/internal/meeting"
)

// Runner is the bulk orchestrator surface the server drives.
type Runner interface {
	Run(ctx context.Context, req bulk.Request) (*bulk.RunReport, error)
}

type Server struct {
	cfg      config.Config
	store    *db.Store
	runner   Runner
	redis    *redis.Client
	validate *validator.Validate
	now      func() time.Time
}

func NewServer(cfg config.Config, store *db.Store, runner Runner, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		redis:    redisClient,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Get("/meetings/{meetingId}/phase", s.handleGetMeetingPhase)
	r.With(s.authMiddleware, s.adminMiddleware).Put("/meetings/{meetingId}", s.handleUpsertMeeting)
	r.With(s.authMiddleware).Get("/units/{unitId}/meetings", s.handleListUnitMeetings)
	r.With(s.authMiddleware, s.adminMiddleware).Post("/credentials/generate", s.handleGenerateCredentials)
	r.With(s.authMiddleware, s.adminMiddleware).Get("/credentials/runs", s.handleListRuns)

	return r
}

// Auth

type claimsKey struct{}

type bearerKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		ctx = context.WithValue(ctx, bearerKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if !auth.CanManageCredentials(claims.Role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerFromContext(ctx context.Context) string {
	value := ctx.Value(bearerKey{})
	token, _ := value.(string)
	return token
}

// Models

type meetingPhaseResponse struct {
	MeetingID       string `json:"meetingId"`
	Title           string `json:"title"`
	Phase           string `json:"phase"`
	CanJoin         bool   `json:"canJoin"`
	ScheduledAt     int64  `json:"scheduledAt"`
	DurationMinutes int    `json:"durationMinutes"`
}

type upsertMeetingRequest struct {
	UnitID          string `json:"unit_id" validate:"required,uuid"`
	Title           string `json:"title" validate:"required"`
	ScheduledAt     int64  `json:"scheduled_at" validate:"required,gt=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

type generateCredentialsRequest struct {
	UnitName        string  `json:"unit_name" validate:"required"`
	UserIDs         []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
	ExpirationHours int     `json:"expiration_hours" validate:"gte=0,lte=720"`
	Mode            string  `json:"mode" validate:"required,oneof=pdf xlsx spreadsheet"`
	Confirmed       bool    `json:"confirmed"`
}

type runRecordResponse struct {
	ID        string `json:"id"`
	UnitName  string `json:"unitName"`
	Mode      string `json:"mode"`
	Requested int    `json:"requested"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	CreatedAt int64  `json:"createdAt"`
}

// Handlers

func (s *Server) handleGetMeetingPhase(w http.ResponseWriter, r *http.Request) {
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}

	record, err := s.store.GetMeeting(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "meeting_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapMeetingPhase(record, s.now().UTC()))
}

func (s *Server) handleUpsertMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}

	var req upsertMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	unitID, err := uuid.Parse(req.UnitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_unit_id")
		return
	}

	record := db.Meeting{
		ID:              meetingID,
		UnitID:          unitID,
		Title:           req.Title,
		ScheduledAt:     time.Unix(req.ScheduledAt, 0).UTC(),
		DurationMinutes: req.DurationMinutes,
	}
	if err := s.store.UpsertMeeting(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapMeetingPhase(record, s.now().UTC()))
}

func (s *Server) handleListUnitMeetings(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "unitId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_unit_id")
		return
	}

	meetings, err := s.store.ListUnitMeetings(r.Context(), unitID, parseLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := s.now().UTC()
	responses := make([]meetingPhaseResponse, 0, len(meetings))
	for _, record := range meetings {
		responses = append(responses, mapMeetingPhase(record, now))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleGenerateCredentials(w http.ResponseWriter, r *http.Request) {
	var req generateCredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	mode, err := bulk.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}

	if remaining, ok := s.cooldownRemaining(r.Context(), req.UnitName); ok {
		writeRateLimited(w, remaining)
		return
	}

	expirationHours := req.ExpirationHours
	if expirationHours <= 0 {
		expirationHours = s.cfg.DefaultExpirationHours
	}

	report, err := s.runner.Run(r.Context(), bulk.Request{
		UnitName:        req.UnitName,
		UserIDs:         req.UserIDs,
		ExpirationHours: expirationHours,
		Mode:            mode,
		Confirmed:       req.Confirmed,
		Bearer:          bearerFromContext(r.Context()),
	})
	if err != nil {
		s.writeRunError(r.Context(), w, req.UnitName, err)
		return
	}

	observeRun(report)
	s.recordRun(r.Context(), report)

	if len(report.Artifact) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "all_items_failed",
			"outcomes": report.Errors(),
		})
		return
	}

	w.Header().Set("Content-Type", contentTypeForMode(report.Mode))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("X-Run-Id", report.ID.String())
	w.Header().Set("X-Run-Outcome", string(report.Tier()))
	w.Header().Set("X-Requested-Count", strconv.Itoa(report.Requested))
	w.Header().Set("X-Succeeded-Count", strconv.Itoa(report.Succeeded))
	w.Header().Set("X-Failed-Count", strconv.Itoa(report.Failed))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Artifact)
}

func (s *Server) writeRunError(ctx context.Context, w http.ResponseWriter, unitName string, err error) {
	var rateLimited *issuance.RateLimitedError
	var requestErr *issuance.RequestError
	switch {
	case errors.As(err, &rateLimited):
		s.storeCooldown(ctx, unitName, rateLimited.RetryAfter)
		writeRateLimited(w, rateLimited.RetryAfter)
	case errors.Is(err, issuance.ErrMissingCredentials):
		writeError(w, http.StatusUnauthorized, "missing_token")
	case errors.Is(err, bulk.ErrNotConfirmed):
		writeError(w, http.StatusBadRequest, "confirmation_required")
	case errors.Is(err, bulk.ErrNoSelection):
		writeError(w, http.StatusBadRequest, "no_selection")
	case errors.As(err, &requestErr):
		log.Printf("bulk issuance failed: %v", err)
		writeError(w, http.StatusBadGateway, "backend_unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "run_cancelled")
	default:
		log.Printf("bulk run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecentRuns(r.Context(), parseLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	responses := make([]runRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, runRecordResponse{
			ID:        record.ID.String(),
			UnitName:  record.UnitName,
			Mode:      record.Mode,
			Requested: record.Requested,
			Succeeded: record.Succeeded,
			Failed:    record.Failed,
			CreatedAt: record.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) recordRun(ctx context.Context, report *bulk.RunReport) {
	if s.store == nil {
		return
	}
	err := s.store.InsertRunRecord(ctx, db.RunRecord{
		ID:        report.ID,
		UnitName:  report.UnitName,
		Mode:      string(report.Mode),
		Requested: report.Requested,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		CreatedAt: report.FinishedAt,
	})
	if err != nil {
		log.Printf("run record insert failed: %v", err)
	}
}

// Cooldown

func (s *Server) storeCooldown(ctx context.Context, unitName string, retryAfter time.Duration) {
	if s.redis == nil || retryAfter <= 0 {
		return
	}
	if err := s.redis.Set(ctx, cooldownKey(unitName), "1", retryAfter).Err(); err != nil {
		log.Printf("cooldown store failed: %v", err)
	}
}

func (s *Server) cooldownRemaining(ctx context.Context, unitName string) (time.Duration, bool) {
	if s.redis == nil {
		return 0, false
	}
	ttl, err := s.redis.TTL(ctx, cooldownKey(unitName)).Result()
	if err != nil || ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func cooldownKey(unitName string) string {
	return fmt.Sprintf("issuance_cooldown:%s", strings.ToLower(strings.TrimSpace(unitName)))
}

// Mapping helpers

func mapMeetingPhase(record db.Meeting, now time.Time) meetingPhaseResponse {
	phase := meeting.Classify(meeting.Schedule{
		ScheduledAt:              record.ScheduledAt,
		EstimatedDurationMinutes: record.DurationMinutes,
	}, now)
	return meetingPhaseResponse{
		MeetingID:       record.ID.String(),
		Title:           record.Title,
		Phase:           string(phase),
		CanJoin:         meeting.CanJoin(phase),
		ScheduledAt:     record.ScheduledAt.Unix(),
		DurationMinutes: record.DurationMinutes,
	}
}

func contentTypeForMode(mode bulk.Mode) string {
	if mode == bulk.ModeSpreadsheet {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

func retryAfterMinutes(retryAfter time.Duration) int {
	minutes := int((retryAfter + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":               "rate_limited",
		"retry_after_minutes": retryAfterMinutes(retryAfter),
	})
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseLimit(r *http.Request, fallback int32) int32 {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return int32(parsed)
		}
	}
	return fallback
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
