// Пакет errors — таксономия ошибок Gaia Hub и запись HTTP-ответов.
// Единый формат тела: {"message": "...", "error": "...", "etag"?: "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteResponse.
package errors //nolint:revive // конфликт имени со stdlib сознательный, импортируется как apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind — вид ошибки, определяет HTTP статус-код.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindAuthTokenTimestamp Kind = "AuthTokenTimestampValidationError"
	KindBadPath            Kind = "BadPathError"
	KindInvalidInput       Kind = "InvalidInputError"
	KindDoesNotExist       Kind = "DoesNotExist"
	KindConflict           Kind = "ConflictError"
	KindNotEnoughProof     Kind = "NotEnoughProofError"
	KindPayloadTooLarge    Kind = "PayloadTooLargeError"
	KindPreconditionFailed Kind = "PreconditionFailedError"
	KindServerError        Kind = "ServerError"
)

// HubError — ошибка ядра hub с видом и дополнительным контекстом.
type HubError struct {
	Kind    Kind
	Message string
	// ETag — текущий etag объекта (для preconditionFailed)
	ETag string
	// OldestValidTimestamp — floor отзыва (для authTokenTimestamp)
	OldestValidTimestamp int64
}

func (e *HubError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// --- Конструкторы ---

// Validation — некорректный токен или запрос, 401.
func Validation(format string, args ...any) *HubError {
	return &HubError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// AuthTokenTimestamp — iat токена ниже floor отзыва, 401.
func AuthTokenTimestamp(floor int64) *HubError {
	return &HubError{
		Kind:                 KindAuthTokenTimestamp,
		Message:              fmt.Sprintf("token issued before oldest valid timestamp %d", floor),
		OldestValidTimestamp: floor,
	}
}

// BadPath — недопустимый путь объекта, 403.
func BadPath(format string, args ...any) *HubError {
	return &HubError{Kind: KindBadPath, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput — некорректные входные данные, 401.
func InvalidInput(format string, args ...any) *HubError {
	return &HubError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// DoesNotExist — объект не найден, 404.
func DoesNotExist(format string, args ...any) *HubError {
	return &HubError{Kind: KindDoesNotExist, Message: fmt.Sprintf(format, args...)}
}

// Conflict — конкурирующая мутация того же endpoint, 409.
func Conflict(format string, args ...any) *HubError {
	return &HubError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotEnoughProof — недостаточно социальных доказательств, 402.
func NotEnoughProof(format string, args ...any) *HubError {
	return &HubError{Kind: KindNotEnoughProof, Message: fmt.Sprintf(format, args...)}
}

// PayloadTooLarge — превышен лимит размера, 413.
func PayloadTooLarge(format string, args ...any) *HubError {
	return &HubError{Kind: KindPayloadTooLarge, Message: fmt.Sprintf(format, args...)}
}

// PreconditionFailed — нарушено условие If-Match/If-None-Match, 412.
// etag — текущий etag объекта, если известен.
func PreconditionFailed(etag, format string, args ...any) *HubError {
	return &HubError{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...), ETag: etag}
}

// Server — внутренняя ошибка, 500.
func Server(format string, args ...any) *HubError {
	return &HubError{Kind: KindServerError, Message: fmt.Sprintf(format, args...)}
}

// IsKind сообщает, является ли err ошибкой hub указанного вида.
func IsKind(err error, kind Kind) bool {
	var he *HubError
	return errors.As(err, &he) && he.Kind == kind
}

// StatusCode возвращает HTTP статус-код для ошибки.
// Не-hub ошибки трактуются как 500.
func StatusCode(err error) int {
	var he *HubError
	if !errors.As(err, &he) {
		return http.StatusInternalServerError
	}
	switch he.Kind {
	case KindValidation, KindAuthTokenTimestamp, KindInvalidInput:
		return http.StatusUnauthorized
	case KindBadPath:
		return http.StatusForbidden
	case KindDoesNotExist:
		return http.StatusNotFound
	case KindNotEnoughProof:
		return http.StatusPaymentRequired
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// responseBody — тело HTTP-ответа с ошибкой.
type responseBody struct {
	Message              string `json:"message"`
	Error                string `json:"error,omitempty"`
	ETag                 string `json:"etag,omitempty"`
	OldestValidTimestamp int64  `json:"oldestValidTokenTimestamp,omitempty"`
}

// WriteResponse записывает HTTP-ответ для ошибки в стандартном формате hub.
func WriteResponse(w http.ResponseWriter, err error) {
	status := StatusCode(err)

	body := responseBody{Message: err.Error()}
	var he *HubError
	if errors.As(err, &he) {
		body.Message = he.Message
		body.Error = string(he.Kind)
		body.ETag = he.ETag
		body.OldestValidTimestamp = he.OldestValidTimestamp
	} else {
		body.Message = "internal server error"
		body.Error = string(KindServerError)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
