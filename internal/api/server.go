// Package api hosts the bucket-notification webhook. The storage layer
// POSTs S3-style event JSON here; object-finalized records are converted
// into transcode jobs and enqueued.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumenweb/sitemedia/internal/config"
	"github.com/lumenweb/sitemedia/internal/model"
	"github.com/lumenweb/sitemedia/internal/queue"
)

// Server exposes the notification endpoint and a health probe.
type Server struct {
	cfg    *config.Config
	queue  *asynq.Client
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, queueClient *asynq.Client) *Server {
	return &Server{cfg: cfg, queue: queueClient}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.HandleFunc("/events", s.handleEvents)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: loggingMiddleware(mux),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("webhook listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bucketNotification is the subset of the S3 event payload MinIO posts
// to webhook targets.
type bucketNotification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Object struct {
				Key          string            `json:"key"`
				ContentType  string            `json:"contentType"`
				UserMetadata map[string]string `json:"userMetadata"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	events, err := parseNotification(r.Body)
	if err != nil {
		http.Error(w, "invalid notification payload", http.StatusBadRequest)
		return
	}
	for _, evt := range events {
		if err := queue.EnqueueTranscode(r.Context(), s.queue, evt); err != nil {
			log.Printf("enqueue for %s failed: %v", evt.ObjectPath, err)
			http.Error(w, "failed to queue job", http.StatusInternalServerError)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"enqueued": len(events)})
}

// parseNotification extracts finalize events from an S3-style bucket
// notification, skipping non-create records and malformed keys.
func parseNotification(body io.Reader) ([]model.StorageFinalizeEvent, error) {
	var notification bucketNotification
	if err := json.NewDecoder(body).Decode(&notification); err != nil {
		return nil, err
	}
	var events []model.StorageFinalizeEvent
	for _, rec := range notification.Records {
		if !strings.HasPrefix(rec.EventName, "s3:ObjectCreated") {
			continue
		}
		// Object keys arrive query-escaped in S3 event payloads.
		objectPath, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			log.Printf("skipping record with malformed key %q: %v", rec.S3.Object.Key, err)
			continue
		}
		events = append(events, model.StorageFinalizeEvent{
			ObjectPath:  objectPath,
			ContentType: rec.S3.Object.ContentType,
			Metadata:    normalizeMetadata(rec.S3.Object.UserMetadata),
		})
	}
	return events, nil
}

// normalizeMetadata strips the S3 custom-metadata header prefix and
// lowercases keys so downstream lookups are header-casing agnostic.
func normalizeMetadata(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.ToLower(strings.TrimPrefix(k, "X-Amz-Meta-"))
		out[k] = v
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
