// delete.go — путь удаления (DELETE /delete): при archival-ограничении
// удаление реализуется как rename в историческое имя.
package service

import (
	"context"
	"time"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

// DeleteRequest — параметры удаления объекта.
type DeleteRequest struct {
	BucketAddress string
	Path          string
	AuthHeader    string
	IfMatch       string
	IfNoneMatch   string
}

// DeleteFile удаляет объект (или переименовывает его в историческое
// имя при archival-ограничении).
func (h *Hub) DeleteFile(ctx context.Context, req *DeleteRequest) error {
	if err := auth.ValidatePath(req.Path); err != nil {
		return err
	}

	endpointKey := req.BucketAddress + "/" + req.Path
	release, ok := h.locks.TryAcquire(endpointKey)
	if !ok {
		return apierrors.Conflict("concurrent operation on this path is in progress")
	}
	defer release()

	access, err := h.authorize(ctx, req.AuthHeader, req.BucketAddress, model.PerformDelete)
	if err != nil {
		return err
	}
	scopes, err := auth.ParseScopes(access.Scopes)
	if err != nil {
		return err
	}
	if err := scopes.CheckDeletePath(req.Path); err != nil {
		return err
	}

	if req.IfNoneMatch != "" {
		return apierrors.Validation("If-None-Match header is not supported on delete")
	}

	tasks := &taskCollector{}
	signer := access.EffectiveSigner()

	if scopes.ArchivalRestricted() {
		// Историческое версионирование: объект не удаляется, а уезжает
		// в историческое имя. Отсутствие объекта — ошибка 404.
		if _, err := h.archiveExisting(ctx, req.BucketAddress, req.Path, req.IfMatch, signer, false, tasks); err != nil {
			return err
		}
	} else {
		res, err := h.drv.PerformDelete(ctx, driver.DeleteParams{
			StorageTopLevel: req.BucketAddress,
			Path:            req.Path,
			IfMatchTag:      req.IfMatch,
			AssoIssAddress:  signer,
		})
		if err != nil {
			return err
		}
		tasks.addLog(model.FileLogRecord{
			Path:           endpointKey,
			AssoIssAddress: signer,
			Action:         model.ActionDelete,
			Size:           res.Size,
			SizeChange:     -res.Size,
			CreateDT:       time.Now().UTC(),
		})
	}

	h.drv.AddTaskToQueue(ctx, tasks.take())
	return nil
}
