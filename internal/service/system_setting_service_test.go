package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSystemSettingServiceDefaults(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewSystemSettingService(gdb)

	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.SiteName != defaultSiteName {
		t.Fatalf("expected default site name, got %s", settings.SiteName)
	}
	if settings.AIProvider != AIProviderOpenAI {
		t.Fatalf("expected default provider openai, got %s", settings.AIProvider)
	}
	if settings.LeadScoringPrompt != defaultLeadScoringPrompt {
		t.Fatalf("unexpected lead prompt default: %q", settings.LeadScoringPrompt)
	}

	svc.SetDefaults("deepseek", "", "ds-env")
	settings, err = svc.GetSettings()
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.AIProvider != AIProviderDeepSeek || settings.DeepSeekAPIKey != "ds-env" {
		t.Fatalf("expected env defaults to apply, got %#v", settings)
	}
}

func TestSystemSettingServiceUpdate(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewSystemSettingService(gdb)

	updated, err := svc.UpdateSettings(SystemSettingsInput{
		SiteName:     "  Grace Church ",
		AIProvider:   "DeepSeek",
		OpenAIAPIKey: " sk-openai ",
	})
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if updated.SiteName != "Grace Church" || updated.AIProvider != AIProviderDeepSeek || updated.OpenAIAPIKey != "sk-openai" {
		t.Fatalf("unexpected settings %#v", updated)
	}

	// 再次更新时应覆盖而不是新增
	if _, err := svc.UpdateSettings(SystemSettingsInput{SiteName: "", AIProvider: "unknown"}); err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.SiteName != defaultSiteName || settings.AIProvider != AIProviderOpenAI || settings.OpenAIAPIKey != "" {
		t.Fatalf("expected defaults after clearing, got %#v", settings)
	}
}

func TestSystemSettingServiceTestAIConnection(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewSystemSettingService(gdb)
	ctx := context.Background()

	if err := svc.TestAIConnection(ctx, AIProviderOpenAI, " "); !errors.Is(err, ErrAIAPIKeyMissing) {
		t.Fatalf("expected ErrAIAPIKeyMissing, got %v", err)
	}

	svc.SetOpenAIBaseURL("https://openai.test/v1/")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		if r.URL.String() != "https://openai.test/v1/models" {
			t.Fatalf("unexpected url %s", r.URL)
		}
		status := http.StatusOK
		if r.Header.Get("Authorization") != "Bearer good" {
			status = http.StatusUnauthorized
		}
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       io.NopCloser(strings.NewReader(`{"error":"bad key"}`)),
			Header:     make(http.Header),
		}, nil
	}})

	if err := svc.TestAIConnection(ctx, "openai", "good"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	err := svc.TestAIConnection(ctx, "openai", "bad")
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected provider error, got %v", err)
	}
}
