package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/store"
)

type ProfileService struct {
	store  store.ProfileStore
	logger *zap.Logger
}

func NewProfileService(st store.ProfileStore, logger *zap.Logger) *ProfileService {
	return &ProfileService{store: st, logger: logger.With(zap.String("component", "profile"))}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*store.Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

func (s *ProfileService) Upsert(ctx context.Context, update store.ProfileUpdate) (*store.Profile, error) {
	if strings.TrimSpace(update.ID) == "" {
		return nil, ErrProfileRequired
	}
	profile, err := s.store.UpsertProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Profile saved", zap.String("user_id", profile.ID))
	return profile, nil
}

func (s *ProfileService) List(ctx context.Context) ([]store.Profile, error) {
	return s.store.ListProfiles(ctx)
}
