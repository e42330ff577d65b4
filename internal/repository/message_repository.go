package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinyyama/dm-api/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRepository is the single-table record store. Besides the messages
// themselves it owns the counter record used for id allocation.
type MessageRepository interface {
	Init(ctx context.Context) error
	GetByID(ctx context.Context, id string) (model.Record, error)
	ListByRecipient(ctx context.Context, username string) ([]model.Record, error)
	ListByParent(ctx context.Context, parentID string) ([]*model.Reply, error)
	Insert(ctx context.Context, rec model.Record) error
	GetCounter(ctx context.Context) (*model.Counter, error)
	// IncrementCounter moves the counter from current.RecordCount to
	// current.RecordCount+1 only if the stored value still matches.
	IncrementCounter(ctx context.Context, current *model.Counter) (*model.Counter, error)
	UpdateCounter(ctx context.Context, newCount uint64) error
}

// Resetter is implemented by stores that the seed command can wipe and
// recreate.
type Resetter interface {
	Reset(ctx context.Context) error
}

const (
	typeIDDM    = "dm"
	typeIDReply = "rep"
)

type messageRow struct {
	MessageID    string            `gorm:"column:message_id;primaryKey;size:64"`
	Timestamp    string            `gorm:"column:timestamp;primaryKey;size:64"`
	TypeID       string            `gorm:"column:type_id;size:8"`
	ToUser       string            `gorm:"column:to_user;size:128;index"`
	FromUser     string            `gorm:"column:from_user;size:128"`
	Message      string            `gorm:"column:message;type:text"`
	InReplyTo    string            `gorm:"column:in_reply_to;size:64;index"`
	QuickReplies datatypes.JSONMap `gorm:"column:quick_replies"`
	NumRecords   uint64            `gorm:"column:num_records"`
}

func (messageRow) TableName() string {
	return "messages"
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).AutoMigrate(&messageRow{})
}

func (r *messageRepository) Reset(ctx context.Context) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	if err := r.db.WithContext(ctx).Migrator().DropTable(&messageRow{}); err != nil {
		return fmt.Errorf("drop messages: %w", err)
	}
	return r.Init(ctx)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (model.Record, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var row messageRow
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", id).
		Order("timestamp ASC").
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toRecord(), nil
}

func (r *messageRepository) ListByRecipient(ctx context.Context, username string) ([]model.Record, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rows []messageRow
	if err := r.db.WithContext(ctx).
		Where("to_user = ?", username).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (r *messageRepository) ListByParent(ctx context.Context, parentID string) ([]*model.Reply, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rows []messageRow
	if err := r.db.WithContext(ctx).
		Where("in_reply_to = ?", parentID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Reply, 0, len(rows))
	for i := range rows {
		if rep, ok := rows[i].toRecord().(*model.Reply); ok {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (r *messageRepository) Insert(ctx context.Context, rec model.Record) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	row, err := rowFromRecord(rec)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *messageRepository) GetCounter(ctx context.Context) (*model.Counter, error) {
	rec, err := r.GetByID(ctx, model.CounterID)
	if err != nil {
		return nil, err
	}
	counter, ok := rec.(*model.Counter)
	if !ok {
		return nil, fmt.Errorf("record %s is not a counter", model.CounterID)
	}
	return counter, nil
}

func (r *messageRepository) IncrementCounter(ctx context.Context, current *model.Counter) (*model.Counter, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	next := current.RecordCount + 1
	res := r.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("message_id = ? AND num_records = ?", model.CounterID, current.RecordCount).
		Update("num_records", next)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetCounter(ctx); err != nil {
			return nil, err
		}
		return nil, ErrCounterConflict
	}
	return &model.Counter{Timestamp: current.Timestamp, RecordCount: next}, nil
}

func (r *messageRepository) UpdateCounter(ctx context.Context, newCount uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	// MySQL reports zero affected rows when the value is unchanged, so
	// existence is checked up front instead of through RowsAffected.
	if _, err := r.GetCounter(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("message_id = ?", model.CounterID).
		Update("num_records", newCount).Error
}

func rowFromRecord(rec model.Record) (messageRow, error) {
	switch m := rec.(type) {
	case *model.Counter:
		return messageRow{MessageID: model.CounterID, Timestamp: m.Timestamp, NumRecords: m.RecordCount}, nil
	case *model.DirectMessage:
		row := messageRow{
			MessageID: m.ID,
			Timestamp: m.Timestamp,
			TypeID:    typeIDDM,
			ToUser:    m.To,
			FromUser:  m.From,
			Message:   m.Body,
		}
		if len(m.QuickReplies) > 0 {
			row.QuickReplies = make(datatypes.JSONMap, len(m.QuickReplies))
			for k, v := range m.QuickReplies {
				row.QuickReplies[k] = v
			}
		}
		return row, nil
	case *model.Reply:
		return messageRow{
			MessageID: m.ID,
			Timestamp: m.Timestamp,
			TypeID:    typeIDReply,
			ToUser:    m.To,
			FromUser:  m.From,
			Message:   m.Body,
			InReplyTo: m.ParentID,
		}, nil
	default:
		return messageRow{}, fmt.Errorf("unsupported record type %T", rec)
	}
}

func (row messageRow) toRecord() model.Record {
	if row.MessageID == model.CounterID {
		return &model.Counter{Timestamp: row.Timestamp, RecordCount: row.NumRecords}
	}
	if row.TypeID == typeIDReply {
		return &model.Reply{
			ID:        row.MessageID,
			Timestamp: row.Timestamp,
			ParentID:  row.InReplyTo,
			To:        row.ToUser,
			From:      row.FromUser,
			Body:      row.Message,
		}
	}
	dm := &model.DirectMessage{
		ID:        row.MessageID,
		Timestamp: row.Timestamp,
		To:        row.ToUser,
		From:      row.FromUser,
		Body:      row.Message,
	}
	if len(row.QuickReplies) > 0 {
		dm.QuickReplies = make(map[string]string, len(row.QuickReplies))
		for k, v := range row.QuickReplies {
			if s, ok := v.(string); ok {
				dm.QuickReplies[k] = s
			}
		}
	}
	return dm
}
