// put.go — путь записи (POST /store): per-endpoint взаимное исключение,
// аутентификация, scope-проверки, прекондиции заголовков, archival-
// переименование, потоковая загрузка с контролем размера.
package service

import (
	"context"
	"io"
	"time"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/domain/model"
	"github.com/bigkaa/gaiahub/internal/driver"
	"github.com/bigkaa/gaiahub/internal/stream"
)

// PutRequest — параметры записи объекта.
type PutRequest struct {
	BucketAddress string
	Path          string
	AuthHeader    string
	// Body — поток тела запроса
	Body io.Reader
	// ContentType из заголовка (пусто — application/octet-stream)
	ContentType string
	// ContentLength из заголовка (-1 — неизвестен)
	ContentLength int64
	IfMatch       string
	IfNoneMatch   string
}

// PutResult — ответ успешной записи.
type PutResult struct {
	PublicURL string `json:"publicURL"`
	ETag      string `json:"etag"`
}

// PutFile выполняет запись объекта по конвейеру §store.
func (h *Hub) PutFile(ctx context.Context, req *PutRequest) (*PutResult, error) {
	if err := auth.ValidatePath(req.Path); err != nil {
		return nil, err
	}

	// Одна конкурентная мутация на endpoint в пределах процесса.
	endpointKey := req.BucketAddress + "/" + req.Path
	release, ok := h.locks.TryAcquire(endpointKey)
	if !ok {
		return nil, apierrors.Conflict("concurrent operation on this path is in progress")
	}
	defer release()

	access, err := h.authorize(ctx, req.AuthHeader, req.BucketAddress, model.PerformPut)
	if err != nil {
		return nil, err
	}
	scopes, err := auth.ParseScopes(access.Scopes)
	if err != nil {
		return nil, err
	}
	if err := scopes.CheckWritePath(req.Path); err != nil {
		return nil, err
	}

	// Прекондиции заголовков.
	if req.IfMatch != "" && req.IfNoneMatch != "" {
		return nil, apierrors.Validation("request should not contain both If-Match and If-None-Match headers")
	}
	if req.IfNoneMatch != "" && req.IfNoneMatch != "*" {
		return nil, apierrors.Validation("only If-None-Match: * is supported")
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	if len(contentType) > maxContentTypeLen {
		return nil, apierrors.Validation("Content-Type header exceeds %d characters", maxContentTypeLen)
	}

	maxBytes := h.cfg.MaxFileUploadSizeBytes()
	if req.ContentLength > maxBytes {
		// Заявленный размер превышает лимит — отказ до начала стриминга.
		return nil, apierrors.PayloadTooLarge("the declared content-length %d exceeds the maximum of %d bytes", req.ContentLength, maxBytes)
	}

	tasks := &taskCollector{}
	signer := access.EffectiveSigner()

	// Archival: текущая версия уезжает в историческое имя;
	// doesNotExist (первая запись) глотается.
	if scopes.ArchivalRestricted() {
		if _, err := h.archiveExisting(ctx, req.BucketAddress, req.Path, "", signer, true, tasks); err != nil {
			return nil, err
		}
	}

	meter := stream.NewMeteredReader(req.Body, stream.UploadCap(req.ContentLength, maxBytes))
	res, err := h.drv.PerformWrite(ctx, driver.WriteParams{
		StorageTopLevel: req.BucketAddress,
		Path:            req.Path,
		Content:         meter,
		ContentType:     contentType,
		ContentLength:   req.ContentLength,
		IfMatchTag:      req.IfMatch,
		IfNoneMatchTag:  req.IfNoneMatch,
		AssoIssAddress:  signer,
	})
	if err != nil {
		if meter.Exceeded() {
			return nil, apierrors.PayloadTooLarge("the upload exceeds the maximum allowed size of %d bytes", maxBytes)
		}
		return nil, err
	}

	action := model.ActionUpdate
	if res.Created {
		action = model.ActionCreate
	}
	tasks.addLog(model.FileLogRecord{
		Path:           endpointKey,
		AssoIssAddress: signer,
		Action:         action,
		Size:           res.Size,
		SizeChange:     res.SizeChange,
		CreateDT:       time.Now().UTC(),
	})
	tasks.addBackupPath(endpointKey)
	h.drv.AddTaskToQueue(ctx, tasks.take())

	return &PutResult{
		PublicURL: h.rewritePublicURL(res.PublicURL),
		ETag:      res.ETag,
	}, nil
}
