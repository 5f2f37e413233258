package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/monitor"
	"github.com/pauljones0/x-parser/internal/notifier"
	"github.com/pauljones0/x-parser/internal/processor"
	"github.com/pauljones0/x-parser/internal/validator"
	"github.com/pauljones0/x-parser/internal/xclient"
)

const maxImportBytes = 20 << 20

// TweetStore is the storage surface the handlers read and edit directly.
type TweetStore interface {
	UpsertTweet(ctx context.Context, t *models.Tweet) (*models.Tweet, error)
	ListTweets(ctx context.Context, filter string, page, limit int) ([]models.Tweet, int, error)
	SetFavorite(ctx context.Context, tweetID string, favorite bool) error
	DeleteTweet(ctx context.Context, tweetID string) error
	DeleteAll(ctx context.Context) (int, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
}

// Pipeline is the processor surface.
type Pipeline interface {
	ParseThread(ctx context.Context, input string, opts processor.ThreadOptions) (*processor.ThreadResult, error)
	AnalyzeTweet(ctx context.Context, tweetID, lang string) (*models.Tweet, error)
	AnalyzeThread(ctx context.Context, tweetID, lang string, dryRun bool) (*processor.ThreadAnalysisResult, error)
	NotifyPending(ctx context.Context) (int, error)
	ImportHTML(ctx context.Context, r io.Reader) (processor.ImportResult, error)
}

// Monitor is the scheduler surface.
type Monitor interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	RunNow(ctx context.Context) (processor.RunResult, error)
	Status() monitor.Status
	SetCredentials(creds xclient.Credentials) error
	ClearCredentials()
	Credentials() xclient.Credentials
	Config() config.MonitorConfig
	UpdateConfig(mc config.MonitorConfig) error
}

// Messenger sends free-form chat messages.
type Messenger interface {
	Enabled() bool
	Send(ctx context.Context, content string) error
}

type Handler struct {
	store     TweetStore
	pipeline  Pipeline
	monitor   Monitor
	messenger Messenger
	validator *validator.Validator
	cfg       *config.Config
	// baseCtx parents monitor schedules started over HTTP, which must
	// outlive the request.
	baseCtx context.Context
	now     func() time.Time
}

func NewHandler(ctx context.Context, store TweetStore, p Pipeline, m Monitor, msg Messenger, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		pipeline:  p,
		monitor:   m,
		messenger: msg,
		validator: validator.New(),
		cfg:       cfg,
		baseCtx:   ctx,
		now:       time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listResponse struct {
	Tweets     []models.Tweet `json:"tweets"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

func queryInt(r *http.Request, key string, def, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return min(v, maxVal)
}

// ListTweets handles GET /api/tweets?page&limit&filter
func (h *Handler) ListTweets(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 1<<20)
	limit := queryInt(r, "limit", h.cfg.TweetsPerPage, 100)
	filter := strings.TrimSpace(r.URL.Query().Get("filter"))

	tweets, total, err := h.store.ListTweets(r.Context(), filter, page, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if tweets == nil {
		tweets = []models.Tweet{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Tweets:     tweets,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	})
}

// SaveTweet handles POST /api/tweets. Existing tweets keep their analysis.
func (h *Handler) SaveTweet(w http.ResponseWriter, r *http.Request) {
	var t models.Tweet
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validator.ValidateStruct(t); err != nil {
		writeErr(w, r, err)
		return
	}
	saved, err := h.store.UpsertTweet(r.Context(), &t)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteAllTweets handles DELETE /api/tweets
func (h *Handler) DeleteAllTweets(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteAll(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// DeleteTweet handles DELETE /api/tweets/{tweetId}
func (h *Handler) DeleteTweet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tweetId")
	if err := h.store.DeleteTweet(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type favoriteRequest struct {
	IsFavorite bool `json:"isFavorite"`
}

// SetFavorite handles PATCH /api/tweets/{tweetId}/favorite
func (h *Handler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tweetId")
	var req favoriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.store.SetFavorite(r.Context(), id, req.IsFavorite); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tweetId": id, "isFavorite": req.IsFavorite})
}

type parseThreadRequest struct {
	URL         string               `json:"url"`
	MaxDepth    int                  `json:"maxDepth"`
	MaxReplies  int                  `json:"maxReplies"`
	MaxPages    int                  `json:"maxPages"`
	Credentials *xclient.Credentials `json:"credentials,omitempty"`
}

// ParseThread handles POST /api/parser/thread. Without credentials in the
// body the monitor's session is used.
func (h *Handler) ParseThread(w http.ResponseWriter, r *http.Request) {
	var req parseThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.MaxDepth < 0 || req.MaxReplies < 0 || req.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "maxDepth, maxReplies and maxPages must not be negative")
		return
	}

	creds := h.monitor.Credentials()
	if req.Credentials != nil {
		creds = *req.Credentials
	}
	res, err := h.pipeline.ParseThread(r.Context(), req.URL, processor.ThreadOptions{
		MaxDepth:    req.MaxDepth,
		MaxReplies:  req.MaxReplies,
		MaxPages:    req.MaxPages,
		Credentials: creds,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImportHTML handles POST /api/parser/import with a saved timeline page as
// the raw request body.
func (h *Handler) ImportHTML(w http.ResponseWriter, r *http.Request) {
	res, err := h.pipeline.ImportHTML(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "page too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeRequest struct {
	TweetID string `json:"tweetId"`
	Mode    string `json:"mode"`
	Lang    string `json:"lang"`
	Debug   bool   `json:"debug"`
}

// Analyze handles POST /api/ai/analyze. Debug runs thread analysis without
// saving the result.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TweetID == "" {
		writeError(w, http.StatusBadRequest, "tweetId is required")
		return
	}
	if req.Lang != "" && req.Lang != "en" && req.Lang != "ru" {
		writeError(w, http.StatusBadRequest, "lang must be en or ru")
		return
	}

	switch req.Mode {
	case "", "tweet":
		t, err := h.pipeline.AnalyzeTweet(r.Context(), req.TweetID, req.Lang)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tweet": t})
	case "thread":
		res, err := h.pipeline.AnalyzeThread(r.Context(), req.TweetID, req.Lang, req.Debug)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeError(w, http.StatusBadRequest, "mode must be tweet or thread")
	}
}

// MonitorStatus handles GET /api/monitor
func (h *Handler) MonitorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

type monitorConfigPatch struct {
	Interval          string   `json:"interval"`
	MaxTweetsPerCheck *int     `json:"maxTweetsPerCheck"`
	MinRelevance      *float64 `json:"minRelevance"`
	SkipRetweets      *bool    `json:"skipRetweets"`
	SkipReplies       *bool    `json:"skipReplies"`
	RelevantOnly      *bool    `json:"relevantOnly"`
}

type monitorRequest struct {
	Action      string               `json:"action"`
	Credentials *xclient.Credentials `json:"credentials,omitempty"`
	Config      *monitorConfigPatch  `json:"config,omitempty"`
}

// MonitorAction handles POST /api/monitor with action
// start|stop|run|credentials|clear|config.
func (h *Handler) MonitorAction(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Action {
	case "start":
		if req.Credentials != nil {
			if err := h.monitor.SetCredentials(*req.Credentials); err != nil {
				writeErr(w, r, err)
				return
			}
		}
		if err := h.monitor.Start(h.baseCtx); err != nil {
			writeErr(w, r, err)
			return
		}
	case "stop":
		h.monitor.Stop()
	case "run":
		res, err := h.monitor.RunNow(r.Context())
		if err != nil && statusFor(err) != http.StatusInternalServerError {
			writeErr(w, r, err)
			return
		}
		resp := map[string]any{"result": res, "status": h.monitor.Status()}
		if err != nil {
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	case "credentials":
		if req.Credentials == nil {
			writeError(w, http.StatusBadRequest, "credentials are required")
			return
		}
		if err := h.monitor.SetCredentials(*req.Credentials); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case "clear":
		h.monitor.ClearCredentials()
	case "config":
		if req.Config == nil {
			writeError(w, http.StatusBadRequest, "config is required")
			return
		}
		mc, err := applyPatch(h.monitor.Config(), req.Config)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.monitor.UpdateConfig(mc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(req.Action))
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

func applyPatch(mc config.MonitorConfig, p *monitorConfigPatch) (config.MonitorConfig, error) {
	if p.Interval != "" {
		d, err := time.ParseDuration(p.Interval)
		if err != nil {
			return mc, err
		}
		mc.Interval = d
	}
	if p.MaxTweetsPerCheck != nil {
		mc.MaxTweetsPerCheck = *p.MaxTweetsPerCheck
	}
	if p.MinRelevance != nil {
		mc.MinRelevance = *p.MinRelevance
	}
	if p.SkipRetweets != nil {
		mc.SkipRetweets = *p.SkipRetweets
	}
	if p.SkipReplies != nil {
		mc.SkipReplies = *p.SkipReplies
	}
	if p.RelevantOnly != nil {
		mc.RelevantOnly = *p.RelevantOnly
	}
	return mc, nil
}

type statsResponse struct {
	models.Stats
	IsMonitoring bool `json:"isMonitoring"`
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context(), h.now())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, IsMonitoring: h.monitor.IsRunning()})
}

type notifyRequest struct {
	Kind string `json:"kind"`
}

// Notify handles POST /api/notify. The default kind sends pending relevant
// tweets; kind "status" posts the monitor status message.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if h.messenger == nil || !h.messenger.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "chat webhook is not configured")
		return
	}

	switch req.Kind {
	case "", "pending":
		n, err := h.pipeline.NotifyPending(r.Context())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"sent": n})
	case "status":
		st, err := h.store.Stats(r.Context(), h.now())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		msg := notifier.FormatStatus(notifier.StatusInfo{
			Stats:    st,
			Running:  h.monitor.IsRunning(),
			Interval: h.monitor.Config().Interval,
		}, h.cfg.Language)
		if err := h.messenger.Send(r.Context(), msg); err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"sent": 1})
	default:
		writeError(w, http.StatusBadRequest, "kind must be pending or status")
	}
}
