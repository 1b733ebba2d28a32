package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/internal/config"
	"github.com/luciancaetano/wsrouter/ws"
)

const logPrefix = "cmd:wsrouter"

// Demo operation types.
const (
	typeAlert = "feature_2.alert"
)

type subscriptionPayload struct {
	Topic string `json:"topic" jsonschema:"description=Topic name"`
}

func (p subscriptionPayload) Validate() error {
	if p.Topic == "" {
		return errors.New("topic is required")
	}
	return nil
}

type subscriptionResponse struct {
	Detail string   `json:"detail"`
	Topics []string `json:"topics"`
}

type alertPayload struct {
	Message string `json:"message"`
}

// newApp builds the demo server from the configuration.
func newApp(cfg *config.Config, logger *slog.Logger) (*ws.Server, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rateLimit := ws.NoRateLimit()
	if cfg.RateLimit > 0 {
		rateLimit = &ws.RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimit),
			Burst:             cfg.RateLimitBurst,
			Enabled:           true,
		}
	}

	checkOrigin := ws.AllOrigins()
	if len(cfg.AllowedOrigins) > 0 {
		checkOrigin = ws.AllowOrigins(cfg.AllowedOrigins...)
	}

	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = -1
	}

	var server *ws.Server
	server = ws.New(&ws.ServerConfig{
		Addr:                  cfg.Addr,
		Path:                  cfg.WSPath,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		MaxConnectionLifespan: cfg.MaxConnectionLifespan,
		Auth:                  tokenAuth(cfg.AuthToken),
		AuthTimeout:           cfg.AuthTimeout,
		ManualAccept:          !cfg.AutoAccept,
		RateLimitConfig:       rateLimit,
		CheckOrigin:           checkOrigin,
		OnConnect:             subscribeFromQuery,
		PingInterval:          pingInterval,
		MaxMessageSize:        cfg.MaxMessageSize,
		PushConcurrency:       cfg.PushConcurrency,
		Title:                 cfg.Title,
		Version:               cfg.Version,
		Description:           cfg.Description,
		DisableDocs:           cfg.DisableDocs,
		MetricsRegisterer:     reg,
		MetricsPath:           cfg.MetricsPath,
		Logger:                logger,
		Routes: func(r chi.Router) {
			r.Post("/push/{topic}", pushHandler(server, logger))
		},
	})

	if err := registerDemo(server, logger); err != nil {
		return nil, nil, err
	}
	return server, reg, nil
}

// registerDemo registers the demo operations.
func registerDemo(server *ws.Server, logger *slog.Logger) error {
	if err := server.Send("ping", wsrouter.Action(func(context.Context, *wsrouter.Call) error {
		return nil
	}), wsrouter.WithReply("pong"), wsrouter.WithSummary("Check the connection")); err != nil {
		return err
	}

	subscriptions := wsrouter.NewRouter("feature_0.", "subscriptions")
	if err := subscriptions.Send("subscribe", wsrouter.Op(func(_ context.Context, call *wsrouter.Call, in subscriptionPayload) (subscriptionResponse, error) {
		call.Conn.Subscribe(in.Topic)
		logger.Info(fmt.Sprintf("%s - client_id=%s subscribed to %s, %d live connections", logPrefix, call.Conn.ID(), in.Topic, len(call.App.Connections())))
		return subscriptionResponse{
			Detail: "Subscribed to " + in.Topic,
			Topics: call.Conn.Topics(),
		}, nil
	}), wsrouter.WithReply("subscribe.response"), wsrouter.WithDescription("Subscribe to a topic.")); err != nil {
		return err
	}
	if err := subscriptions.Send("unsubscribe", wsrouter.Op(func(_ context.Context, call *wsrouter.Call, in subscriptionPayload) (subscriptionResponse, error) {
		call.Conn.Unsubscribe(in.Topic)
		return subscriptionResponse{
			Detail: "Unsubscribed from " + in.Topic,
			Topics: call.Conn.Topics(),
		}, nil
	}), wsrouter.WithReply("unsubscribe.response"), wsrouter.WithDescription("Unsubscribe from a topic.")); err != nil {
		return err
	}

	health := wsrouter.NewRouter("feature_1.")
	if err := health.Send("ping", wsrouter.Action(func(context.Context, *wsrouter.Call) error {
		return nil
	}), wsrouter.WithReply("pong")); err != nil {
		return err
	}

	alerts := wsrouter.NewRouter("feature_2.", "alerts")
	if err := alerts.Recv("alert", wsrouter.Op(func(_ context.Context, _ *wsrouter.Call, in alertPayload) (alertPayload, error) {
		logger.Info(fmt.Sprintf("%s - alert: %s", logPrefix, in.Message))
		return in, nil
	}), wsrouter.WithSummary("Alert pushed to topic subscribers")); err != nil {
		return err
	}

	for _, rt := range []*wsrouter.Router{subscriptions, health, alerts} {
		if err := server.Include(rt, ""); err != nil {
			return err
		}
	}
	return nil
}

// subscribeFromQuery subscribes a new connection to every "topic" query
// parameter of its upgrade request.
func subscribeFromQuery(conn wsrouter.Conn) {
	r := conn.Request()
	if r == nil {
		return
	}
	for _, topic := range r.URL.Query()["topic"] {
		if topic != "" {
			conn.Subscribe(topic)
		}
	}
}

// tokenAuth requires the "token" query parameter to match token. An empty
// token disables authentication.
func tokenAuth(token string) wsrouter.AuthFunc {
	if token == "" {
		return nil
	}
	return func(_ context.Context, ch wsrouter.Channel) bool {
		r := ch.Request()
		return r != nil && r.URL.Query().Get("token") == token
	}
}

// pushHandler pushes an alert to the topic in the URL. The body is an
// optional alert payload; without one the message is "foobar".
func pushHandler(server *ws.Server, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := chi.URLParam(r, "topic")

		payload := alertPayload{Message: "foobar"}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid alert payload", http.StatusBadRequest)
				return
			}
		}

		if err := server.Push(r.Context(), typeAlert, payload, topic); err != nil {
			logger.Error(fmt.Sprintf("%s - push to %s failed: %v", logPrefix, topic, err))
			status := http.StatusInternalServerError
			if errors.Is(err, wsrouter.ErrPayloadValidation) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"topic": topic})
	}
}
