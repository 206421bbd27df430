package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

func TestUploadCap(t *testing.T) {
	tests := []struct {
		name          string
		contentLength int64
		maxSize       int64
		want          int64
	}{
		{"заявлен меньше лимита", 100, 1000, 100},
		{"заявлен равен лимиту", 1000, 1000, 1000},
		{"заявлен больше лимита", 2000, 1000, 1000},
		{"размер неизвестен", -1, 1000, 1000},
		{"нулевой размер", 0, 1000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UploadCap(tt.contentLength, tt.maxSize); got != tt.want {
				t.Errorf("UploadCap(%d, %d) = %d, ожидалось %d", tt.contentLength, tt.maxSize, got, tt.want)
			}
		})
	}
}

func TestMeteredReader_WithinLimit(t *testing.T) {
	src := strings.NewReader("hello")
	m := NewMeteredReader(src, 100)

	data, err := io.ReadAll(m)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("данные искажены: %q", data)
	}
	if m.BytesRead() != 5 {
		t.Errorf("счётчик: ожидалось 5, получено %d", m.BytesRead())
	}
	if m.Exceeded() {
		t.Error("лимит не должен быть превышен")
	}
}

func TestMeteredReader_Overrun(t *testing.T) {
	// Клиент заявил 100 байт, реально шлёт 200.
	src := bytes.NewReader(make([]byte, 200))
	m := NewMeteredReader(src, 100)

	_, err := io.Copy(io.Discard, m)
	if !apierrors.IsKind(err, apierrors.KindPayloadTooLarge) {
		t.Fatalf("ожидалась ошибка payloadTooLarge, получено: %v", err)
	}
	if !m.Exceeded() {
		t.Error("флаг превышения должен быть установлен")
	}

	// Последующие чтения тоже завершаются ошибкой.
	if _, err := m.Read(make([]byte, 1)); !apierrors.IsKind(err, apierrors.KindPayloadTooLarge) {
		t.Errorf("повторное чтение после превышения: %v", err)
	}
}

func TestMeteredReader_ExactLimit(t *testing.T) {
	src := bytes.NewReader(make([]byte, 100))
	m := NewMeteredReader(src, 100)

	n, err := io.Copy(io.Discard, m)
	if err != nil {
		t.Fatalf("тело ровно в лимит должно проходить: %v", err)
	}
	if n != 100 {
		t.Errorf("прочитано %d, ожидалось 100", n)
	}
}
