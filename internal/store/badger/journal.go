package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/store"
)

const (
	prefixAlarm   = "alarm/"
	prefixHandle  = "handle/"
	prefixDose    = "dose/"
	prefixPending = "pending/"
	keySequence   = "seq/pending"
)

type Journal struct {
	db  *dgbadger.DB
	seq *dgbadger.Sequence
}

var _ store.Journal = (*Journal)(nil)

func NewJournal(db *dgbadger.DB) (*Journal, error) {
	seq, err := db.GetSequence([]byte(keySequence), 64)
	if err != nil {
		return nil, fmt.Errorf("journal sequence: %w", err)
	}
	return &Journal{db: db, seq: seq}, nil
}

func (j *Journal) Close() error {
	return j.seq.Release()
}

func (j *Journal) Load(ctx context.Context) (store.JournalState, error) {
	if err := ctx.Err(); err != nil {
		return store.JournalState{}, err
	}

	state := store.JournalState{
		Handles: make(map[domain.Handle]store.HandleRef),
		History: domain.NewDoseHistory(),
	}
	err := j.db.View(func(txn *dgbadger.Txn) error {
		if err := scanPrefix(txn, prefixAlarm, func(_ string, val []byte) error {
			var a domain.Alarm
			if err := json.Unmarshal(val, &a); err != nil {
				return fmt.Errorf("decode alarm: %w", err)
			}
			state.Alarms = append(state.Alarms, a)
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, prefixHandle, func(key string, val []byte) error {
			var ref store.HandleRef
			if err := json.Unmarshal(val, &ref); err != nil {
				return fmt.Errorf("decode handle %s: %w", key, err)
			}
			state.Handles[domain.Handle(key)] = ref
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, prefixDose, func(key string, val []byte) error {
			day, err := domain.ParseDay(key)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("decode dose count %s: %w", key, err)
			}
			state.History.Raise(day, n)
			return nil
		}); err != nil {
			return err
		}

		return scanPrefix(txn, prefixPending, func(key string, val []byte) error {
			seq, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				return fmt.Errorf("decode pending key %s: %w", key, err)
			}
			var c domain.Confirmation
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("decode pending %d: %w", seq, err)
			}
			state.Pending = append(state.Pending, store.PendingConfirmation{Seq: seq, Confirmation: c})
			return nil
		})
	})
	if err != nil {
		return store.JournalState{}, err
	}
	return state, nil
}

func (j *Journal) PutAlarm(ctx context.Context, a domain.Alarm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(alarmKey(a.ID), val)
	})
}

func (j *Journal) DeleteAlarm(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		var stale [][]byte
		err := scanPrefix(txn, prefixHandle, func(key string, val []byte) error {
			var ref store.HandleRef
			if err := json.Unmarshal(val, &ref); err != nil {
				return fmt.Errorf("decode handle %s: %w", key, err)
			}
			if ref.AlarmID == id {
				stale = append(stale, handleKey(domain.Handle(key)))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(alarmKey(id))
	})
}

func (j *Journal) PutHandle(ctx context.Context, h domain.Handle, ref store.HandleRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == "" {
		return errors.New("empty handle")
	}
	val, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(handleKey(h), val)
	})
}

func (j *Journal) DeleteHandle(ctx context.Context, h domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Delete(handleKey(h))
	})
}

func (j *Journal) Enqueue(ctx context.Context, c domain.Confirmation) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := j.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next pending sequence: %w", err)
	}
	seq := n + 1
	val, err := json.Marshal(c)
	if err != nil {
		return 0, err
	}
	err = j.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(pendingKey(seq), val)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (j *Journal) Commit(ctx context.Context, seq uint64, day domain.Day, count int, consumed domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		if err := txn.Set(doseKey(day), []byte(strconv.Itoa(count))); err != nil {
			return err
		}
		if seq != 0 {
			if err := txn.Delete(pendingKey(seq)); err != nil {
				return err
			}
		}
		if consumed != "" {
			return txn.Delete(handleKey(consumed))
		}
		return nil
	})
}

func (j *Journal) Discard(ctx context.Context, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Delete(pendingKey(seq))
	})
}

func (j *Journal) PutDoses(ctx context.Context, history *domain.DoseHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, d := range history.Days() {
		if err := wb.Set(doseKey(d), []byte(strconv.Itoa(history.Count(d)))); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func scanPrefix(txn *dgbadger.Txn, prefix string, fn func(key string, val []byte) error) error {
	opts := dgbadger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		key := strings.TrimPrefix(string(item.Key()), prefix)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func alarmKey(id uuid.UUID) []byte {
	return []byte(prefixAlarm + id.String())
}

func handleKey(h domain.Handle) []byte {
	return []byte(prefixHandle + string(h))
}

func doseKey(d domain.Day) []byte {
	return []byte(prefixDose + d.String())
}

// pendingKey pads the sequence so lexical key order is numeric order.
func pendingKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixPending, seq))
}
