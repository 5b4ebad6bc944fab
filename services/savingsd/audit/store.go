package audit

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"savingsbank/core/events"
	"savingsbank/core/types"
)

// ErrChainBroken is returned by Verify when a stored record does not link to
// its predecessor.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Record is one committed event in the append-only audit log. Hash commits
// to the previous hash, the sequence number, the type and the attributes.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex;not null" json:"sequence"`
	Type       string    `gorm:"size:96;index" json:"type"`
	Attributes string    `gorm:"type:text" json:"-"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex" json:"hash"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (Record) TableName() string { return "savings_audit_records" }

// Decoded returns the attribute map.
func (r Record) Decoded() map[string]string {
	out := map[string]string{}
	if r.Attributes != "" {
		_ = json.Unmarshal([]byte(r.Attributes), &out)
	}
	return out
}

// MarshalJSON renders the attributes as an object.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Attributes map[string]string `json:"attributes"`
	}{plain: plain(r), Attributes: r.Decoded()})
}

// Store persists audit records through gorm.
type Store struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func chainHash(prev string, seq uint64, eventType, attributes string) string {
	hasher := blake3.New(32, nil)
	hasher.Write([]byte(prev))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	hasher.Write(buf[:])
	hasher.Write([]byte(eventType))
	hasher.Write([]byte{0})
	hasher.Write([]byte(attributes))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Append stores evt as the next record of the chain.
func (s *Store) Append(ctx context.Context, evt *types.Event) (*Record, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, fmt.Errorf("audit: event type required")
	}
	// json.Marshal sorts map keys, which keeps the hash input canonical.
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, fmt.Errorf("audit: encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var record Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last Record
		prev := ""
		seq := uint64(1)
		err := tx.Order("sequence desc").Limit(1).Take(&last).Error
		switch {
		case err == nil:
			prev = last.Hash
			seq = last.Sequence + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}
		record = Record{
			ID:         uuid.New(),
			Sequence:   seq,
			Type:       evt.Type,
			Attributes: string(attrs),
			PrevHash:   prev,
			Hash:       chainHash(prev, seq, evt.Type, string(attrs)),
			CreatedAt:  s.now(),
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	return &record, nil
}

// Emit implements events.Emitter. Failures are logged since committed state
// cannot be rolled back from here.
func (s *Store) Emit(evt events.Event) {
	payload, ok := events.PayloadOf(evt)
	if !ok {
		return
	}
	if _, err := s.Append(context.Background(), payload); err != nil {
		s.logger.Error("audit append failed",
			slog.String("component", "audit"),
			slog.String("type", payload.Type),
			slog.Any("error", err))
	}
}

// List returns up to limit records with a sequence greater than after,
// optionally restricted to a type prefix.
func (s *Store) List(ctx context.Context, after uint64, limit int, typePrefix string) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Where("sequence > ?", after)
	if prefix := strings.TrimSpace(typePrefix); prefix != "" {
		query = query.Where("type LIKE ?", prefix+"%")
	}
	var records []Record
	if err := query.Order("sequence asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}

// Head returns the latest record, or nil for an empty log.
func (s *Store) Head(ctx context.Context) (*Record, error) {
	var last Record
	err := s.db.WithContext(ctx).Order("sequence desc").Limit(1).Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: head: %w", err)
	}
	return &last, nil
}

// Verify walks the whole log and recomputes every link.
func (s *Store) Verify(ctx context.Context) error {
	prev := ""
	expected := uint64(1)
	var after uint64
	for {
		batch, err := s.List(ctx, after, 500, "")
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, record := range batch {
			if record.Sequence != expected || record.PrevHash != prev {
				return fmt.Errorf("%w at sequence %d", ErrChainBroken, record.Sequence)
			}
			if chainHash(prev, record.Sequence, record.Type, record.Attributes) != record.Hash {
				return fmt.Errorf("%w at sequence %d", ErrChainBroken, record.Sequence)
			}
			prev = record.Hash
			expected++
			after = record.Sequence
		}
	}
}
