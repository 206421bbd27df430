// Пакет stream — контроль размера потоковой загрузки.
// Сквозной счётчик байтов без буферизации: превышение лимита
// обрывает чтение ошибкой payloadTooLarge, которая всплывает и из
// pipeline, и из загрузки драйвера.
package stream

import (
	"io"
	"sync/atomic"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

// UploadCap вычисляет лимит загрузки: min(заявленный content-length,
// сконфигурированный максимум), когда клиент заявил положительный
// конечный размер не больше максимума; иначе максимум.
func UploadCap(contentLength, maxSize int64) int64 {
	if contentLength > 0 && contentLength <= maxSize {
		return contentLength
	}
	return maxSize
}

// MeteredReader — сквозной io.Reader с подсчётом байтов и лимитом.
type MeteredReader struct {
	src      io.Reader
	limit    int64
	read     atomic.Int64
	exceeded atomic.Bool
}

// NewMeteredReader оборачивает src лимитом limit байт.
func NewMeteredReader(src io.Reader, limit int64) *MeteredReader {
	return &MeteredReader{src: src, limit: limit}
}

// Read инкрементирует счётчик и пробрасывает чанк дальше.
// Первое превышение лимита возвращает payloadTooLarge; все
// последующие чтения также завершаются этой ошибкой.
func (m *MeteredReader) Read(p []byte) (int, error) {
	if m.exceeded.Load() {
		return 0, m.limitError()
	}

	n, err := m.src.Read(p)
	if n > 0 {
		total := m.read.Add(int64(n))
		if total > m.limit {
			m.exceeded.Store(true)
			return n, m.limitError()
		}
	}
	return n, err
}

// BytesRead возвращает количество прочитанных байтов.
func (m *MeteredReader) BytesRead() int64 {
	return m.read.Load()
}

// Exceeded сообщает, был ли превышен лимит.
func (m *MeteredReader) Exceeded() bool {
	return m.exceeded.Load()
}

func (m *MeteredReader) limitError() error {
	return apierrors.PayloadTooLarge("the upload exceeds the maximum allowed size of %d bytes", m.limit)
}
