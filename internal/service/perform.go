// perform.go — batch-движок perform-files: дерево PUT/DELETE листьев
// с последовательной/параллельной дисциплиной. Ошибка листа
// захватывается в его результат; фатальные ошибки выше листа
// (токен, blacklist верхнего уровня) валят весь batch.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/batch"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
)

// PerformRequest — параметры batch-запроса.
type PerformRequest struct {
	BucketAddress string
	AuthHeader    string
	// Root — корень дерева операций
	Root *batch.Node
}

// PerformFiles исполняет дерево операций и возвращает результаты
// листьев. Все накопленные backup-пути и file-log записи ставятся
// в очередь одним сообщением.
func (h *Hub) PerformFiles(ctx context.Context, req *PerformRequest) ([]batch.Result, error) {
	access, err := h.authorize(ctx, req.AuthHeader, req.BucketAddress, model.PerformPerform)
	if err != nil {
		return nil, err
	}
	scopes, err := auth.ParseScopes(access.Scopes)
	if err != nil {
		return nil, err
	}

	tasks := &taskCollector{}
	signer := access.EffectiveSigner()

	results := batch.Run(ctx, req.Root, func(ctx context.Context, leaf *batch.Node) batch.Result {
		return h.execLeaf(ctx, req.BucketAddress, signer, scopes, tasks, leaf)
	})

	if !tasks.empty() {
		h.drv.AddTaskToQueue(ctx, tasks.take())
	}
	return results, nil
}

// execLeaf диспетчеризует лист по типу операции.
func (h *Hub) execLeaf(ctx context.Context, bucketAddress, signer string, scopes *auth.Scopes, tasks *taskCollector, leaf *batch.Node) batch.Result {
	switch leaf.Type {
	case batch.TypePut:
		return h.execPutLeaf(ctx, bucketAddress, signer, scopes, tasks, leaf)
	case batch.TypeDelete:
		return h.execDeleteLeaf(ctx, bucketAddress, signer, scopes, tasks, leaf)
	default:
		return batch.CaptureError(leaf.ID, apierrors.InvalidInput("unsupported operation type %q", leaf.Type))
	}
}

// execPutLeaf — PUT-лист: blacklist, scope'ы, коэрция content,
// archival-переименование, запись без ETag-прекондиций.
func (h *Hub) execPutLeaf(ctx context.Context, bucketAddress, signer string, scopes *auth.Scopes, tasks *taskCollector, leaf *batch.Node) batch.Result {
	blocked, err := h.blacklist.IsBlacklisted(ctx, bucketAddress, model.PerformPut)
	if err != nil {
		return batch.CaptureError(leaf.ID, err)
	}
	if blocked {
		return batch.CaptureError(leaf.ID, apierrors.Validation("address %s is not allowed to use this hub", bucketAddress))
	}

	if err := scopes.CheckWritePath(leaf.Path); err != nil {
		return batch.CaptureError(leaf.ID, err)
	}

	content, contentType, err := coerceContent(leaf)
	if err != nil {
		return batch.CaptureError(leaf.ID, err)
	}
	if int64(len(content)) > h.cfg.MaxFileUploadSizeBytes() {
		return batch.CaptureError(leaf.ID, apierrors.PayloadTooLarge("content exceeds the maximum of %d bytes", h.cfg.MaxFileUploadSizeBytes()))
	}

	if scopes.ArchivalRestricted() {
		if _, err := h.archiveExisting(ctx, bucketAddress, leaf.Path, "", signer, true, tasks); err != nil {
			return batch.CaptureError(leaf.ID, err)
		}
	}

	res, err := h.drv.PerformWrite(ctx, driver.WriteParams{
		StorageTopLevel: bucketAddress,
		Path:            leaf.Path,
		Content:         bytes.NewReader(content),
		ContentType:     contentType,
		ContentLength:   int64(len(content)),
		AssoIssAddress:  signer,
	})
	if err != nil {
		return batch.CaptureError(leaf.ID, err)
	}

	key := bucketAddress + "/" + leaf.Path
	action := model.ActionUpdate
	if res.Created {
		action = model.ActionCreate
	}
	tasks.addLog(model.FileLogRecord{
		Path:           key,
		AssoIssAddress: signer,
		Action:         action,
		Size:           res.Size,
		SizeChange:     res.SizeChange,
		CreateDT:       time.Now().UTC(),
	})
	tasks.addBackupPath(key)

	return batch.Result{
		ID:        leaf.ID,
		Success:   true,
		PublicURL: h.rewritePublicURL(res.PublicURL),
		ETag:      res.ETag,
	}
}

// execDeleteLeaf — DELETE-лист: blacklist, scope'ы, rename при
// archival-ограничении либо условное удаление с опциональным
// проглатыванием doesNotExist.
func (h *Hub) execDeleteLeaf(ctx context.Context, bucketAddress, signer string, scopes *auth.Scopes, tasks *taskCollector, leaf *batch.Node) batch.Result {
	blocked, err := h.blacklist.IsBlacklisted(ctx, bucketAddress, model.PerformDelete)
	if err != nil {
		return batch.CaptureError(leaf.ID, err)
	}
	if blocked {
		return batch.CaptureError(leaf.ID, apierrors.Validation("address %s is not allowed to use this hub", bucketAddress))
	}

	if err := scopes.CheckDeletePath(leaf.Path); err != nil {
		return batch.CaptureError(leaf.ID, err)
	}

	if scopes.ArchivalRestricted() {
		if _, err := h.archiveExisting(ctx, bucketAddress, leaf.Path, "", signer, false, tasks); err != nil {
			return batch.CaptureError(leaf.ID, err)
		}
		return batch.Result{ID: leaf.ID, Success: true}
	}

	res, err := h.drv.PerformDelete(ctx, driver.DeleteParams{
		StorageTopLevel: bucketAddress,
		Path:            leaf.Path,
		AssoIssAddress:  signer,
	})
	if err != nil {
		if leaf.DoIgnoreDoesNotExistError && apierrors.IsKind(err, apierrors.KindDoesNotExist) {
			return batch.Result{ID: leaf.ID, Success: true}
		}
		return batch.CaptureError(leaf.ID, err)
	}

	tasks.addLog(model.FileLogRecord{
		Path:           bucketAddress + "/" + leaf.Path,
		AssoIssAddress: signer,
		Action:         model.ActionDelete,
		Size:           res.Size,
		SizeChange:     -res.Size,
		CreateDT:       time.Now().UTC(),
	})
	return batch.Result{ID: leaf.ID, Success: true}
}

// coerceContent приводит content листа к байтам и Content-Type:
// строка остаётся как есть (text/plain по умолчанию), JSON-объект
// сериализуется (application/json по умолчанию), прочие значения —
// ошибка invalidInput.
func coerceContent(leaf *batch.Node) ([]byte, string, error) {
	raw := bytes.TrimSpace(leaf.Content)
	if len(raw) == 0 {
		return nil, "", apierrors.InvalidInput("PUT operation requires content")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, "", apierrors.InvalidInput("malformed string content")
		}
		ct := leaf.ContentType
		if ct == "" {
			ct = "text/plain"
		}
		return []byte(s), ct, nil
	case '{', '[':
		ct := leaf.ContentType
		if ct == "" {
			ct = "application/json"
		}
		return raw, ct, nil
	default:
		return nil, "", apierrors.InvalidInput("content must be a string or a JSON object")
	}
}
