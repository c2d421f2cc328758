package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestCategoryForStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorCategory
	}{
		{"400 is input", http.StatusBadRequest, CategoryInputError},
		{"404 is not found", http.StatusNotFound, CategoryNotFound},
		{"410 is not found", http.StatusGone, CategoryNotFound},
		{"429 is rate limit", http.StatusTooManyRequests, CategoryRateLimit},
		{"500 is service", http.StatusInternalServerError, CategoryServiceError},
		{"503 is service", http.StatusServiceUnavailable, CategoryServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryForStatus(tt.status); got != tt.want {
				t.Errorf("CategoryForStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAsToolError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		if AsToolError("x", nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("existing tool error gets tool name", func(t *testing.T) {
		orig := NewToolError("HTTP_503", CategoryServiceError, errors.New("unavailable"))
		got := AsToolError("web_metadata", orig)
		if got.Tool != "web_metadata" || got.Code != "HTTP_503" || !got.Retryable {
			t.Errorf("unexpected %+v", got)
		}
		if orig.Tool != "" {
			t.Error("original must not be mutated")
		}
	})

	t.Run("network error", func(t *testing.T) {
		got := AsToolError("video_metadata", &NetworkError{Target: "youtube", Err: errors.New("dial tcp")})
		if got.Code != "NETWORK" || got.Category != CategoryServiceError || !got.Retryable {
			t.Errorf("unexpected %+v", got)
		}
		if !errors.Is(got, ErrConnectionFailed) {
			t.Error("cause should remain reachable")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		got := AsToolError("web_metadata", &TimeoutError{Target: "t", Timeout: "30s"})
		if got.Code != "TIMEOUT" || !got.Retryable {
			t.Errorf("unexpected %+v", got)
		}
	})
}

func TestToolExecutionErrorJSON(t *testing.T) {
	te := &ToolExecutionError{
		Tool:     "web_metadata",
		Code:     "HTTP_404",
		Message:  "page not found",
		Category: CategoryNotFound,
		Details:  map[string]string{"url": "https://example.com/missing"},
		Err:      errors.New("internal cause"),
	}

	data, err := json.Marshal(te)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["category"] != "NOT_FOUND" || decoded["retryable"] != false {
		t.Errorf("unexpected JSON %s", data)
	}
	if _, ok := decoded["Err"]; ok {
		t.Error("underlying error must not be serialized")
	}
	if got := te.Error(); got != "tool web_metadata: [HTTP_404] page not found" {
		t.Errorf("Error() = %q", got)
	}
}
