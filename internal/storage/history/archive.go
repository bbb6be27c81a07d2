package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/moodchat/client/internal/model/chat"
)

const queueSize = 256

// Entry is one archived timeline message.
type Entry struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	MessageID     string         `gorm:"uniqueIndex;not null" json:"messageId"`
	Kind          string         `gorm:"index" json:"kind"`
	IsUser        bool           `json:"isUser"`
	Text          string         `json:"text"`
	AttachmentRef string         `json:"attachmentRef,omitempty"`
	Result        datatypes.JSON `json:"result,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func (Entry) TableName() string {
	return "history_entries"
}

// Archive writes settled timeline messages to sqlite in the background.
type Archive struct {
	db *gorm.DB

	mu     sync.Mutex
	seen   map[string]struct{}
	closed bool

	queue chan Entry
	done  chan struct{}
	once  sync.Once
}

// Open opens (or creates) the sqlite archive at path.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return New(db)
}

// New migrates db and starts the writer.
func New(db *gorm.DB) (*Archive, error) {
	if err := migrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	a := &Archive{
		db:    db,
		seen:  make(map[string]struct{}),
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a, nil
}

func migrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0001_history_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Entry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&Entry{})
			},
		},
	})
}

// Observe is a timeline listener. Messages are queued once they are settled;
// placeholders and already archived ids are skipped. It never blocks.
func (a *Archive) Observe(snapshot []chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	present := make(map[string]struct{}, len(snapshot))
	for _, message := range snapshot {
		present[message.ID] = struct{}{}
		if message.IsProcessing || message.IsPendingLoading() {
			continue
		}
		if _, dup := a.seen[message.ID]; dup {
			continue
		}
		a.seen[message.ID] = struct{}{}

		entry, err := toEntry(message)
		if err != nil {
			log.Warn().Err(err).Str("message_id", message.ID).Msg("history entry not archived")
			continue
		}

		select {
		case a.queue <- entry:
		default:
			log.Warn().Str("message_id", message.ID).Msg("history queue full, dropping entry")
		}
	}

	// Ids never return once they leave the timeline, so seen only tracks live entries.
	for id := range a.seen {
		if _, ok := present[id]; !ok {
			delete(a.seen, id)
		}
	}
}

func toEntry(message chat.Message) (Entry, error) {
	entry := Entry{
		MessageID:     message.ID,
		Kind:          string(message.Kind),
		IsUser:        message.IsUser,
		Text:          message.Text,
		AttachmentRef: message.AttachmentRef,
		CreatedAt:     message.CreatedAt,
	}
	if message.Result != nil {
		raw, err := json.Marshal(message.Result)
		if err != nil {
			return Entry{}, fmt.Errorf("encode result: %w", err)
		}
		entry.Result = datatypes.JSON(raw)
	}
	return entry, nil
}

func (a *Archive) run() {
	defer close(a.done)
	for entry := range a.queue {
		err := a.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).Create(&entry).Error
		if err != nil {
			log.Error().Err(err).Str("message_id", entry.MessageID).Msg("failed to archive message")
		}
	}
}

// List returns archived entries, newest first.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var entries []Entry
	err := a.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Close drains queued entries, stops the writer and closes the database.
func (a *Archive) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done

	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
