package service

import (
	"context"
	"log"

	"rhythmhub/internal/cache"
	"rhythmhub/internal/repository"
)

// BeatmapLookup resolves beatmap checksums through the cache, falling
// back to persistence on a miss.
type BeatmapLookup struct {
	cache cache.BeatmapCache
	repo  repository.MultiplayerRepo
}

func NewBeatmapLookup(c cache.BeatmapCache, repo repository.MultiplayerRepo) *BeatmapLookup {
	return &BeatmapLookup{cache: c, repo: repo}
}

// Checksum returns the stored checksum for a beatmap, or "" when the
// beatmap is unknown.
func (l *BeatmapLookup) Checksum(ctx context.Context, beatmapID int64) (string, error) {
	if l.cache != nil {
		if checksum, err := l.cache.GetChecksum(ctx, beatmapID); err == nil && checksum != "" {
			return checksum, nil
		}
	}

	checksum, err := l.repo.GetBeatmapChecksum(ctx, beatmapID)
	if err != nil {
		return "", err
	}
	if checksum != "" && l.cache != nil {
		if err := l.cache.SetChecksum(ctx, beatmapID, checksum); err != nil {
			log.Printf("failed to cache beatmap checksum: %v", err)
		}
	}
	return checksum, nil
}

// RestrictionLookup resolves the restricted-account flag through the
// cache, falling back to persistence on a miss.
type RestrictionLookup struct {
	cache cache.RestrictionCache
	repo  repository.MultiplayerRepo
}

func NewRestrictionLookup(c cache.RestrictionCache, repo repository.MultiplayerRepo) *RestrictionLookup {
	return &RestrictionLookup{cache: c, repo: repo}
}

// IsRestricted reports whether the user is barred from joining rooms.
func (l *RestrictionLookup) IsRestricted(ctx context.Context, userID int64) (bool, error) {
	if l.cache != nil {
		if restricted, err := l.cache.GetRestricted(ctx, userID); err == nil {
			return restricted, nil
		}
	}

	restricted, err := l.repo.IsUserRestricted(ctx, userID)
	if err != nil {
		return false, err
	}
	if l.cache != nil {
		if err := l.cache.SetRestricted(ctx, userID, restricted); err != nil {
			log.Printf("failed to cache restriction flag: %v", err)
		}
	}
	return restricted, nil
}
