// kv.go — revocation/blacklist записи в Redis.
// Монотонный upsert floor'а выполняется в оптимистичной транзакции
// WATCH/MULTI: запись проходит только если новое значение больше
// существующего (max-wins), createDate исходной записи сохраняется.
package s3driver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

const (
	revocationKeyPrefix = "revocation/"
	blacklistKeyPrefix  = "blacklist/"
)

// revocationRecord — значение ключа revocation/<addr>.
type revocationRecord struct {
	Timestamp  int64     `json:"timestamp"`
	CreateDate time.Time `json:"createDate"`
	UpdateDate time.Time `json:"updateDate"`
}

// blacklistValue — значение ключа blacklist/<addr>.
type blacklistValue struct {
	Type int `json:"type"`
}

// kvStore — обёртка Redis-клиента под key/value часть контракта.
type kvStore struct {
	db *redis.Client
}

// newKVStore подключается к Redis и проверяет доступность.
func newKVStore(ctx context.Context, addr string, db int) (*kvStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &kvStore{db: client}, nil
}

// readAuthTimestamp возвращает floor отзыва адреса (0 — записи нет).
func (s *kvStore) readAuthTimestamp(ctx context.Context, addr string) (int64, error) {
	data, err := s.db.Get(ctx, revocationKeyPrefix+addr).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.Server("failed to read revocation record")
	}

	rec := &revocationRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return 0, apierrors.Server("corrupt revocation record")
	}
	return rec.Timestamp, nil
}

// writeAuthTimestamp выполняет монотонный upsert floor'а.
// Конфликт транзакции (конкурентная запись ключа) возвращается
// ошибкой — вызывающая сторона повторяет с бэкоффом.
func (s *kvStore) writeAuthTimestamp(ctx context.Context, addr string, timestamp int64) error {
	key := revocationKeyPrefix + addr

	err := s.db.Watch(ctx, func(tx *redis.Tx) error {
		now := time.Now().UTC()
		rec := &revocationRecord{Timestamp: timestamp, CreateDate: now, UpdateDate: now}

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			existing := &revocationRecord{}
			if jsonErr := json.Unmarshal(data, existing); jsonErr == nil {
				if timestamp <= existing.Timestamp {
					// max-wins: более старый floor не затирает свежий
					return nil
				}
				rec.CreateDate = existing.CreateDate
			}
		case errors.Is(err, redis.Nil):
			// первой записи нет
		default:
			return err
		}

		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		return apierrors.Server("failed to write revocation record")
	}
	return nil
}

// readBlacklistType возвращает тип блокировки адреса (0 — записи нет).
func (s *kvStore) readBlacklistType(ctx context.Context, addr string) (int, error) {
	data, err := s.db.Get(ctx, blacklistKeyPrefix+addr).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.Server("failed to read blacklist record")
	}

	val := &blacklistValue{}
	if err := json.Unmarshal(data, val); err != nil {
		return 0, apierrors.Server("corrupt blacklist record")
	}
	return val.Type, nil
}
