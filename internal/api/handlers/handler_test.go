package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/gaiahub/internal/auth"
	"github.com/bigkaa/gaiahub/internal/cache"
	"github.com/bigkaa/gaiahub/internal/config"
	"github.com/bigkaa/gaiahub/internal/driver/diskdriver"
	"github.com/bigkaa/gaiahub/internal/service"
)

// testServer — полный HTTP-стек hub поверх дискового драйвера.
type testServer struct {
	srv *httptest.Server
	cfg *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		ServerName:             "hub.example.com",
		PageSize:               10,
		MaxFileUploadSizeMB:    20,
		AuthTimestampCacheSize: 100,
		BlacklistCacheSize:     100,
		Driver:                 config.DriverDisk,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drv := diskdriver.New(diskdriver.Config{BaseDir: t.TempDir(), PageSize: cfg.PageSize}, logger)
	if err := drv.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("ошибка инициализации драйвера: %v", err)
	}

	hub := service.NewHub(cfg, drv,
		cache.NewAuthTimestampCache(drv, cfg.AuthTimestampCacheSize, logger),
		cache.NewBlacklistCache(drv, cfg.BlacklistCacheSize, logger),
		logger,
	)

	health := NewHealthHandler()
	health.SetReady(true)
	handler := New(hub, cfg, health)

	router := chi.NewRouter()
	handler.Routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, cfg: cfg}
}

func newTestKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("ошибка генерации ключа: %v", err)
	}
	return priv
}

func (ts *testServer) authHeader(t *testing.T, priv *secp256k1.PrivateKey) string {
	t.Helper()
	claims := &auth.Claims{
		GaiaChallenge: ts.cfg.ChallengeText(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   hex.EncodeToString(priv.PubKey().SerializeCompressed()),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(auth.MethodES256K, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("ошибка подписи токена: %v", err)
	}
	return "bearer v1:" + token
}

func addressOf(t *testing.T, priv *secp256k1.PrivateKey) string {
	t.Helper()
	addr, err := auth.AddressFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("ошибка вычисления адреса: %v", err)
	}
	return addr
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("ошибка создания запроса: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("ошибка запроса: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStore_Happy(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)

	resp := ts.do(t, http.MethodPost, "/store/"+addr+"/notes/a.txt", "hello", map[string]string{
		"Authorization": ts.authHeader(t, priv),
		"Content-Type":  "text/plain",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("статус: ожидалось 202, получено %d", resp.StatusCode)
	}

	var body struct {
		PublicURL string `json:"publicURL"`
		ETag      string `json:"etag"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if body.ETag != `"5d41402abc4b2a76b9719d911017c592"` {
		t.Errorf("etag: %s", body.ETag)
	}
	if !strings.HasSuffix(body.PublicURL, addr+"/notes/a.txt") {
		t.Errorf("publicURL: %s", body.PublicURL)
	}
}

func TestStore_MissingAuth(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)

	resp := ts.do(t, http.MethodPost, "/store/"+addressOf(t, priv)+"/a.txt", "x", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("статус: ожидалось 401, получено %d", resp.StatusCode)
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "ValidationError" {
		t.Errorf("тело ошибки: %+v", body)
	}
}

func TestStore_BadPath(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)

	resp := ts.do(t, http.MethodPost, "/store/"+addressOf(t, priv)+"/x..y", "data", map[string]string{
		"Authorization": ts.authHeader(t, priv),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("путь с '..': ожидалось 403, получено %d", resp.StatusCode)
	}
}

func TestStore_TrailingSlashStripped(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)

	resp := ts.do(t, http.MethodPost, "/store/"+addr+"/notes/a.txt/", "x", map[string]string{
		"Authorization": ts.authHeader(t, priv),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("статус: %d", resp.StatusCode)
	}

	var body struct {
		PublicURL string `json:"publicURL"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if !strings.HasSuffix(body.PublicURL, "/notes/a.txt") {
		t.Errorf("хвостовой слэш должен срезаться: %s", body.PublicURL)
	}
}

func TestDelete_Happy(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)
	header := map[string]string{"Authorization": ts.authHeader(t, priv)}

	ts.do(t, http.MethodPost, "/store/"+addr+"/a.txt", "x", header)

	resp := ts.do(t, http.MethodDelete, "/delete/"+addr+"/a.txt", "", header)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("удаление: ожидалось 202, получено %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodDelete, "/delete/"+addr+"/a.txt", "", header)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("повторное удаление: ожидалось 404, получено %d", resp.StatusCode)
	}
}

func TestListFiles_Endpoint(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)
	header := map[string]string{"Authorization": ts.authHeader(t, priv)}

	ts.do(t, http.MethodPost, "/store/"+addr+"/a.txt", "x", header)
	ts.do(t, http.MethodPost, "/store/"+addr+"/b.txt", "y", header)

	resp := ts.do(t, http.MethodPost, "/list-files/"+addr, `{}`, header)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("листинг: ожидалось 202, получено %d", resp.StatusCode)
	}

	var body struct {
		Entries []*string `json:"entries"`
		Page    *string   `json:"page"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка разбора: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Errorf("ожидалось 2 записи: %+v", body.Entries)
	}
}

func TestPerformFiles_Endpoint(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)

	payload := `{
		"isSequential": true,
		"values": [
			{"id": "1", "type": "PUT", "path": "a.txt", "content": "hello"},
			{"id": "2", "type": "DELETE", "path": "a.txt"}
		]
	}`

	resp := ts.do(t, http.MethodPost, "/perform-files/"+addr, payload, map[string]string{
		"Authorization": ts.authHeader(t, priv),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("perform-files: ожидалось 202, получено %d", resp.StatusCode)
	}

	var results []struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("ошибка разбора: %v", err)
	}
	if len(results) != 2 || !results[0].Success || !results[1].Success {
		t.Errorf("результаты: %+v", results)
	}
}

func TestRevokeAll_Endpoint(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)
	addr := addressOf(t, priv)

	resp := ts.do(t, http.MethodPost, "/revoke-all/"+addr, `{"oldestValidTimestamp": 1712000000}`, map[string]string{
		"Authorization": ts.authHeader(t, priv),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("revoke-all: ожидалось 202, получено %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "success" {
		t.Errorf("тело ответа: %+v", body)
	}
}

func TestHubInfo(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/hub_info/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hub_info: ожидалось 200, получено %d", resp.StatusCode)
	}

	var body struct {
		ChallengeText              string `json:"challenge_text"`
		LatestAuthVersion          string `json:"latest_auth_version"`
		MaxFileUploadSizeMegabytes int64  `json:"max_file_upload_size_megabytes"`
		ReadURLPrefix              string `json:"read_url_prefix"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка разбора: %v", err)
	}
	if body.LatestAuthVersion != "v1" {
		t.Errorf("latest_auth_version: %s", body.LatestAuthVersion)
	}
	if body.MaxFileUploadSizeMegabytes != 20 {
		t.Errorf("max_file_upload_size_megabytes: %d", body.MaxFileUploadSizeMegabytes)
	}
	if !strings.Contains(body.ChallengeText, "gaiahub") || !strings.Contains(body.ChallengeText, "hub.example.com") {
		t.Errorf("challenge_text: %s", body.ChallengeText)
	}
	if body.ReadURLPrefix == "" {
		t.Error("read_url_prefix не должен быть пустым")
	}
}

func TestWelcome(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("welcome: ожидалось 200, получено %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: %s", ct)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/live", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live: %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready: %d", resp.StatusCode)
	}
}

func TestListFiles_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	priv := newTestKey(t)

	big := `{"page": "` + strings.Repeat("x", 5000) + `"}`
	resp := ts.do(t, http.MethodPost, "/list-files/"+addressOf(t, priv), big, map[string]string{
		"Authorization": ts.authHeader(t, priv),
	})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("тело больше 4 KiB: ожидалось 413, получено %d", resp.StatusCode)
	}
}
