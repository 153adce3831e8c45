// Package repository reconciles transcode outcomes into the business
// records owned by the rest of the application. It only ever performs
// merge-updates: record creation and deletion live elsewhere.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenweb/sitemedia/internal/classify"
	"github.com/lumenweb/sitemedia/internal/model"
)

// MediaReconciler writes media URLs and statuses into the entity tables.
type MediaReconciler struct {
	pool *pgxpool.Pool
}

// NewMediaReconciler constructs a reconciler.
func NewMediaReconciler(pool *pgxpool.Pool) *MediaReconciler {
	return &MediaReconciler{pool: pool}
}

// MarkReady merges the published media and poster URLs plus a ready
// status into the record selected by the classification.
func (r *MediaReconciler) MarkReady(ctx context.Context, c classify.Result, mediaURL, posterURL string) error {
	fields := mediaFields(c.Category, model.StatusReady)
	fields[urlField(c.Category)] = mediaURL
	fields[posterField(c.Category)] = posterURL
	fields[kindField(c.Category)] = model.MediaKindHLS
	return r.merge(ctx, c, fields)
}

// MarkError merges a bare error status into the record selected by the
// classification. Called on the failure path; the orchestrator logs and
// discards any error from here so cleanup always runs.
func (r *MediaReconciler) MarkError(ctx context.Context, c classify.Result) error {
	return r.merge(ctx, c, mediaFields(c.Category, model.StatusError))
}

func (r *MediaReconciler) merge(ctx context.Context, c classify.Result, fields map[string]string) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal media fields: %w", err)
	}
	now := time.Now().UTC()
	switch c.Category {
	case classify.CategoryBackground:
		_, err = r.pool.Exec(ctx, `
			INSERT INTO site_settings (site_key, data, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (site_key)
			DO UPDATE SET data = site_settings.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`, c.SiteKey, payload, now)
	case classify.CategoryProduct:
		_, err = r.pool.Exec(ctx, `
			INSERT INTO products (site_key, product_id, data, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (site_key, product_id)
			DO UPDATE SET data = products.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`, c.SiteKey, c.EntityID, payload, now)
	case classify.CategorySection:
		_, err = r.pool.Exec(ctx, `
			INSERT INTO menu_sections (site_key, section_id, data, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (site_key, section_id)
			DO UPDATE SET data = menu_sections.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`, c.SiteKey, c.EntityID, payload, now)
	case classify.CategoryAboutPage:
		_, err = r.pool.Exec(ctx, `
			INSERT INTO site_pages (site_key, page, data, updated_at)
			VALUES ($1, 'about', $2, $3)
			ON CONFLICT (site_key, page)
			DO UPDATE SET data = site_pages.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`, c.SiteKey, payload, now)
	default:
		return fmt.Errorf("no record for category %q", c.Category)
	}
	if err != nil {
		return fmt.Errorf("merge %s record: %w", c.Category, err)
	}
	return nil
}

func mediaFields(cat classify.Category, status model.MediaStatus) map[string]string {
	return map[string]string{statusField(cat): string(status)}
}

// Field names differ per entity shape: the background video lives among
// other site-wide settings, so its fields carry the home prefix.
func urlField(cat classify.Category) string {
	if cat == classify.CategoryBackground {
		return "homeVideoUrl"
	}
	return "videoUrl"
}

func posterField(cat classify.Category) string {
	if cat == classify.CategoryBackground {
		return "homeVideoPosterUrl"
	}
	return "videoPosterUrl"
}

func kindField(cat classify.Category) string {
	if cat == classify.CategoryBackground {
		return "homeVideoKind"
	}
	return "videoKind"
}

func statusField(cat classify.Category) string {
	if cat == classify.CategoryBackground {
		return "homeVideoStatus"
	}
	return "videoStatus"
}
