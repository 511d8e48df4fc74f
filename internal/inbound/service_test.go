package inbound

import (
	"context"
	"errors"
	"testing"

	"call-automation/internal/config"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestGet_CreatesDefaultOnce(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, config.VoiceCredentials{})
	ctx := context.Background()

	a, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := svc.Get(ctx)
	if a.ID != 1 || b.ID != 1 {
		t.Fatalf("expected a single lazily created row, got %d and %d", a.ID, b.ID)
	}
	if a.Language != DefaultLanguage || a.Voice != DefaultVoice || !a.IsActive {
		t.Fatalf("unexpected defaults: %+v", a)
	}
}

func TestUpdate_Partial(t *testing.T) {
	svc := NewService(NewMemoryRepo(), config.VoiceCredentials{})
	ctx := context.Background()

	c, err := svc.Update(ctx, Update{Prompt: strp("Sell plan B")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.Prompt != "Sell plan B" {
		t.Fatalf("prompt not updated: %q", c.Prompt)
	}
	if c.Language != DefaultLanguage || c.GreetingMessage != DefaultGreetingMessage || c.FunnelGoal != DefaultFunnelGoal {
		t.Fatalf("untouched fields changed: %+v", c)
	}
	if c.UpdatedAt == nil {
		t.Fatalf("expected updated_at")
	}

	c, _ = svc.Update(ctx, Update{Language: strp(" uz "), IsActive: boolp(false)})
	if c.Language != "uz" || c.IsActive || c.Prompt != "Sell plan B" {
		t.Fatalf("unexpected config after second update: %+v", c)
	}

	if _, err := svc.Update(ctx, Update{Voice: strp(" ")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestForProvider(t *testing.T) {
	repo := NewMemoryRepo()
	creds := config.VoiceCredentials{ElevenLabsAPIKey: "el-key", ElevenLabsAgentID: "agent"}
	svc := NewService(repo, creds)
	ctx := context.Background()

	pc, err := svc.ForProvider(ctx)
	if err != nil {
		t.Fatalf("ForProvider: %v", err)
	}
	if pc.Voice != DefaultVoice || pc.ElevenLabsAPIKey != "el-key" || pc.ElevenLabsAgentID != "agent" {
		t.Fatalf("unexpected default provider config: %+v", pc)
	}
	if _, err := repo.FirstActive(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("provider read must not create rows")
	}

	inactive := Defaults()
	inactive.IsActive = false
	inactive.Prompt = "inactive"
	repo.Insert(inactive)
	active := Defaults()
	active.Prompt = "active"
	repo.Insert(active)

	pc, _ = svc.ForProvider(ctx)
	if pc.Prompt != "active" {
		t.Fatalf("expected first active row, got %q", pc.Prompt)
	}
}
