package api

import (
	"strings"
	"testing"
)

func TestParseNotification(t *testing.T) {
	payload := `{
		"Records": [
			{
				"eventName": "s3:ObjectCreated:Put",
				"s3": {
					"object": {
						"key": "videos%2Fpublic%2Facme%2FhomeBackground.mp4",
						"contentType": "video/mp4",
						"userMetadata": {"X-Amz-Meta-Transcode": "hls"}
					}
				}
			},
			{
				"eventName": "s3:ObjectRemoved:Delete",
				"s3": {"object": {"key": "videos%2Fold.mp4"}}
			}
		]
	}`
	events, err := parseNotification(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("parseNotification: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event (delete skipped), got %d", len(events))
	}
	evt := events[0]
	if evt.ObjectPath != "videos/public/acme/homeBackground.mp4" {
		t.Fatalf("object path = %q", evt.ObjectPath)
	}
	if evt.ContentType != "video/mp4" {
		t.Fatalf("content type = %q", evt.ContentType)
	}
	if evt.Metadata["transcode"] != "hls" {
		t.Fatalf("metadata not normalized: %v", evt.Metadata)
	}
}

func TestParseNotificationRejectsGarbage(t *testing.T) {
	if _, err := parseNotification(strings.NewReader("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNormalizeMetadata(t *testing.T) {
	got := normalizeMetadata(map[string]string{"X-Amz-Meta-Transcode": "hls", "plain": "v"})
	if got["transcode"] != "hls" || got["plain"] != "v" {
		t.Fatalf("normalizeMetadata = %v", got)
	}
	if normalizeMetadata(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
