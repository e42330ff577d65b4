package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shinyyama/dm-api/internal/metrics"
	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/repository"
)

type MessageService interface {
	SendDM(ctx context.Context, to, from, body string, quickReplies map[string]string) (*model.DirectMessage, error)
	ListDMs(ctx context.Context, username string) ([]*model.DirectMessage, error)
	ReplyTo(ctx context.Context, parentID, text string) (*model.Reply, error)
	ListReplies(ctx context.Context, parentID string) ([]*model.Reply, error)
}

type messageService struct {
	repo   repository.MessageRepository
	alloc  *Allocator
	logger *slog.Logger
	now    func() time.Time
}

func NewMessageService(repo repository.MessageRepository, alloc *Allocator, logger *slog.Logger) MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &messageService{repo: repo, alloc: alloc, logger: logger, now: time.Now}
}

func (s *messageService) SendDM(ctx context.Context, to, from, body string, quickReplies map[string]string) (*model.DirectMessage, error) {
	if isBlank(to) || isBlank(from) || isBlank(body) {
		return nil, fmt.Errorf("%w: to, from and message are required", ErrInvalidInput)
	}

	id, _, err := s.alloc.Next(ctx)
	if err != nil {
		return nil, err
	}

	dm := &model.DirectMessage{
		ID:        id,
		Timestamp: model.FormatTimestamp(s.now()),
		To:        to,
		From:      from,
		Body:      body,
	}
	if len(quickReplies) > 0 {
		dm.QuickReplies = quickReplies
	}

	if err := s.insert(ctx, dm); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "dm sent", slog.String("id", dm.ID), slog.String("to", to), slog.String("from", from))
	return dm, nil
}

func (s *messageService) ListDMs(ctx context.Context, username string) ([]*model.DirectMessage, error) {
	recs, err := s.repo.ListByRecipient(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list messages to %s: %w", username, err)
	}
	var dms []*model.DirectMessage
	for _, rec := range recs {
		if dm, ok := rec.(*model.DirectMessage); ok {
			dms = append(dms, dm)
		}
	}
	// No user registry exists, so an unknown user and a user without DMs
	// look the same.
	if len(dms) == 0 {
		return nil, ErrNotFound
	}
	return dms, nil
}

func (s *messageService) ReplyTo(ctx context.Context, parentID, text string) (*model.Reply, error) {
	if isBlank(text) {
		return nil, fmt.Errorf("%w: reply is required", ErrInvalidInput)
	}

	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message %s: %w", parentID, err)
	}
	from, to, ok := model.Participants(parent)
	if !ok {
		return nil, ErrNotFound
	}
	if dm, isDM := parent.(*model.DirectMessage); isDM {
		text = dm.ResolveQuickReply(text)
	}

	id, _, err := s.alloc.Next(ctx)
	if err != nil {
		return nil, err
	}

	reply := &model.Reply{
		ID:        id,
		Timestamp: model.FormatTimestamp(s.now()),
		ParentID:  parentID,
		To:        from,
		From:      to,
		Body:      text,
	}
	if err := s.insert(ctx, reply); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reply sent", slog.String("id", reply.ID), slog.String("parent", parentID))
	return reply, nil
}

func (s *messageService) ListReplies(ctx context.Context, parentID string) ([]*model.Reply, error) {
	replies, err := s.repo.ListByParent(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list replies to %s: %w", parentID, err)
	}
	if len(replies) == 0 {
		return nil, ErrNotFound
	}
	return replies, nil
}

func (s *messageService) insert(ctx context.Context, rec model.Record) error {
	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: message %s already exists", ErrConflict, rec.RecordID())
		}
		return fmt.Errorf("insert message %s: %w", rec.RecordID(), err)
	}
	metrics.MessagesCreated.WithLabelValues(string(rec.Kind())).Inc()
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
