// revoke.go — отзыв ранее выданных токенов (POST /revoke-all).
// Токен проверяется без floor'а, чтобы владелец не заблокировал
// сам себя; новый floor попадает в драйвер через write-through кэш.
package service

import (
	"context"
	"log/slog"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/auth"
)

// RevokeRequest — параметры отзыва.
type RevokeRequest struct {
	BucketAddress string
	AuthHeader    string
	// OldestValidTimestamp — новый floor: минимально допустимый iat
	OldestValidTimestamp int64
}

// RevokeAll устанавливает floor отзыва bucket'а.
func (h *Hub) RevokeAll(ctx context.Context, req *RevokeRequest) error {
	token, err := auth.ParseAuthHeader(req.AuthHeader)
	if err != nil {
		return err
	}

	// Floor не применяется: токен с iat ниже нового floor'а обязан
	// суметь выполнить сам отзыв.
	access, err := auth.Verify(token, req.BucketAddress, h.challenges, auth.VerifyOptions{
		RequireCorrectHubURL: h.cfg.RequireCorrectHubURL,
		ValidHubURLs:         h.validHubURLs,
	})
	if err != nil {
		return err
	}
	if err := h.checkWhitelist(access); err != nil {
		return err
	}

	if req.OldestValidTimestamp <= 0 {
		return apierrors.InvalidInput("oldestValidTimestamp must be a positive unix timestamp")
	}

	if err := h.authTimestamps.SetAuthTimestamp(ctx, req.BucketAddress, req.OldestValidTimestamp); err != nil {
		return err
	}

	h.logger.Info("Floor отзыва обновлён",
		slog.String("address", req.BucketAddress),
		slog.Int64("oldest_valid_timestamp", req.OldestValidTimestamp),
	)
	return nil
}
