package inbound

import (
	"context"
	"errors"
	"fmt"

	"call-automation/internal/config"
)

type Service struct {
	repo  Repository
	voice config.VoiceCredentials
}

func NewService(repo Repository, voice config.VoiceCredentials) *Service {
	return &Service{repo: repo, voice: voice}
}

// Get returns the editable config, creating the default row on first access.
func (s *Service) Get(ctx context.Context) (Config, error) {
	return s.repo.GetOrCreate(ctx, Defaults())
}

// Update changes only the supplied fields.
func (s *Service) Update(ctx context.Context, u Update) (Config, error) {
	if err := u.Validate(); err != nil {
		return Config{}, err
	}
	if u.Empty() {
		return s.Get(ctx)
	}
	c, err := s.repo.Update(ctx, Defaults(), u)
	if err != nil {
		return Config{}, fmt.Errorf("update inbound config: %w", err)
	}
	return c, nil
}

// ForProvider is the unauthenticated read used by the inbound scenario. It
// never creates rows and falls back to built-in defaults.
func (s *Service) ForProvider(ctx context.Context) (ProviderConfig, error) {
	c, err := s.repo.FirstActive(ctx)
	if errors.Is(err, ErrNotFound) {
		c = Defaults()
	} else if err != nil {
		return ProviderConfig{}, err
	}
	return ProviderConfig{
		Language:          c.Language,
		Voice:             c.Voice,
		GreetingMessage:   c.GreetingMessage,
		Prompt:            c.Prompt,
		FunnelGoal:        c.FunnelGoal,
		ElevenLabsAPIKey:  s.voice.ElevenLabsAPIKey,
		ElevenLabsAgentID: s.voice.ElevenLabsAgentID,
	}, nil
}
