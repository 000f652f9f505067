package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
)

var predictionsBucket = []byte("predictions")

// BoltHistory журнал предсказаний в файле bolt.
// Ключ записи — последовательный номер big-endian, значение — gob.
type BoltHistory struct {
	db *bolt.DB
}

// OpenBoltHistory открывает или создаёт файл журнала.
func OpenBoltHistory(path string) (*BoltHistory, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(predictionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history bucket: %w", err)
	}

	return &BoltHistory{db: db}, nil
}

// Record добавляет запись в конец журнала.
func (h *BoltHistory) Record(ctx context.Context, rec entity.PredictionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(predictionsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, buf.Bytes())
	})
}

// Recent возвращает не более limit последних записей, новые первыми.
// limit <= 0 возвращает все записи.
func (h *BoltHistory) Recent(ctx context.Context, limit int) ([]entity.PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []entity.PredictionRecord
	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(predictionsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec entity.PredictionRecord
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				return fmt.Errorf("decode record %x: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close закрывает файл журнала.
func (h *BoltHistory) Close() error {
	return h.db.Close()
}

var _ port.PredictionHistory = (*BoltHistory)(nil)
