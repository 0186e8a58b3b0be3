package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/api"
	"github.com/m3rciful/wabot/core/whatsapp/dispatch"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// Sink accepts decoded updates, usually dispatch.Dispatcher.Enqueue.
type Sink func(ctx context.Context, u message.RawUpdate) error

// Poller produces updates until ctx is done.
type Poller interface {
	Poll(ctx context.Context, sink Sink) error
}

// LongPoller drains the instance notification queue. Every received
// notification is acknowledged before it is handed to the sink.
type LongPoller struct {
	Client     api.Receiver
	Interval   time.Duration
	RetryDelay time.Duration
}

// Poll loops until ctx is done. Errors never stop the loop.
func (p *LongPoller) Poll(ctx context.Context, sink Sink) error {
	if p.Client == nil {
		return errors.New("whatsapp: long poller without client")
	}
	retry := p.RetryDelay
	if retry <= 0 {
		retry = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		wait, err := p.pollOnce(ctx, sink)
		if err != nil && ctx.Err() == nil {
			level := slog.LevelError
			if api.IsTransient(err) {
				level = slog.LevelWarn
			}
			logger.Event(ctx, logger.CompWA, level, "poll.fail",
				slog.String("status", "fail"),
				slog.String("error_kind", api.Classify(err)),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				slog.Duration("retry_in", retry),
			)
			wait = retry
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// pollOnce receives at most one notification and reports how long to wait before the next call.
func (p *LongPoller) pollOnce(ctx context.Context, sink Sink) (time.Duration, error) {
	n, err := p.Client.ReceiveNotification(ctx)
	if err != nil {
		return 0, fmt.Errorf("receive notification: %w", err)
	}
	if n == nil {
		return p.idle(), nil
	}
	if err := p.Client.DeleteNotification(ctx, n.ReceiptID); err != nil {
		return 0, fmt.Errorf("delete notification %d: %w", n.ReceiptID, err)
	}
	if err := sink(ctx, n.Body); err != nil {
		logger.Warn(ctx, logger.CompWA, "poll.drop",
			slog.String("status", "fail"),
			slog.Int64("receipt_id", n.ReceiptID),
			slog.String("err", err.Error()),
		)
	}
	return 0, nil
}

func (p *LongPoller) idle() time.Duration {
	if p.Interval <= 0 {
		return time.Second
	}
	return p.Interval
}

// Webhook serves the provider callbacks over HTTP.
type Webhook struct {
	Listen string
	Port   int
	Path   string
	// Token, when set, must match the Authorization bearer of every request.
	Token string
}

// Poll serves until ctx is done, then shuts the server down gracefully.
func (w *Webhook) Poll(ctx context.Context, sink Sink) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(w.Listen, strconv.Itoa(w.Port)),
		Handler:           w.Handler(sink),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("webhook listen: %w", err)
		}
		return nil
	}
}

// Handler returns the chi router serving the webhook path.
func (w *Webhook) Handler(sink Sink) http.Handler {
	path := w.Path
	if path == "" {
		path = "/webhook"
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(path, w.serveUpdate(sink))
	return r
}

func (w *Webhook) serveUpdate(sink Sink) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := logger.WithTrace(req.Context(), uuid.NewString(), middleware.GetReqID(req.Context()))
		if w.Token != "" && !validBearer(req.Header.Get("Authorization"), w.Token) {
			logger.Warn(ctx, logger.CompWA, "webhook.unauthorized",
				slog.String("status", "fail"),
				slog.String("remote", req.RemoteAddr),
			)
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(req.Body, 4<<20))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		u, err := message.Decode(body)
		if err != nil {
			logger.Warn(ctx, logger.CompWA, "webhook.bad_body",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		if err := sink(ctx, u); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrQueueClosed) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(rw, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func validBearer(header, token string) bool {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	return ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(value) == token
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// BuildPoller returns the poller selected by cfg.
func BuildPoller(cfg *coreconfig.Config, client api.Receiver) Poller {
	if strings.EqualFold(cfg.WhatsApp.RunMode, coreconfig.RunModeWebhook) {
		return &Webhook{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			Path:   cfg.Webhook.Path,
			Token:  cfg.Webhook.Token,
		}
	}
	return &LongPoller{
		Client:     client,
		Interval:   time.Duration(cfg.WhatsApp.PollIntervalMS) * time.Millisecond,
		RetryDelay: time.Duration(cfg.WhatsApp.RetryDelayMS) * time.Millisecond,
	}
}
