package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)

func newTestService(store repository.MessageRepository, maxRetries int) *messageService {
	svc := NewMessageService(store, newTestAllocator(store, maxRetries), nil).(*messageService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestSendDM(t *testing.T) {
	t.Parallel()

	store := seededStore()
	svc := newTestService(store, 5)

	dm, err := svc.SendDM(context.Background(), "bob", "alice", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "7", dm.ID)
	assert.Equal(t, "2024-05-01 12:30:00.123456", dm.Timestamp)
	assert.Equal(t, "bob", dm.To)
	assert.Equal(t, "alice", dm.From)
	assert.Equal(t, "hi", dm.Body)
	assert.Nil(t, dm.QuickReplies)
	assert.Equal(t, uint64(7), store.count())

	got, err := store.GetByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, dm, got)
}

func TestSendDMKeepsQuickReplies(t *testing.T) {
	t.Parallel()

	store := seededStore()
	svc := newTestService(store, 5)

	dm, err := svc.SendDM(context.Background(), "bob", "alice", "lunch?", map[string]string{"yes": "sounds good!"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"yes": "sounds good!"}, dm.QuickReplies)
}

func TestSendDMValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		to   string
		from string
		body string
	}{
		{name: "missing from", to: "bob", body: "hi"},
		{name: "missing body", to: "bob", from: "alice"},
		{name: "missing recipient", from: "alice", body: "hi"},
		{name: "blank body", to: "bob", from: "alice", body: "  \t"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := seededStore()
			svc := newTestService(store, 5)

			_, err := svc.SendDM(context.Background(), tt.to, tt.from, tt.body, nil)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, uint64(6), store.count(), "no id should be consumed")
		})
	}
}

func TestSendDMInsertConflict(t *testing.T) {
	t.Parallel()

	store := seededStore()
	store.put(&model.DirectMessage{ID: "7", Timestamp: "2023-01-01 00:00:07.000000", To: "x", From: "y", Body: "stale"})
	svc := newTestService(store, 5)

	_, err := svc.SendDM(context.Background(), "bob", "alice", "hi", nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSendDMStoreFailure(t *testing.T) {
	t.Parallel()

	store := seededStore()
	store.insertErr = errors.New("connection reset")
	svc := newTestService(store, 5)

	_, err := svc.SendDM(context.Background(), "bob", "alice", "hi", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListDMs(t *testing.T) {
	t.Parallel()

	store := seededStore()
	store.put(&model.Reply{ID: "9", Timestamp: "2023-01-01 00:00:09.000000", ParentID: "3", To: "j-otterbox", From: "jackie_chan", Body: "reply, not a dm"})
	svc := newTestService(store, 5)

	dms, err := svc.ListDMs(context.Background(), "j-otterbox")
	require.NoError(t, err)
	require.Len(t, dms, 2)
	assert.Equal(t, "1", dms[0].ID)
	assert.Equal(t, "2", dms[1].ID)
}

func TestListDMsNotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(seededStore(), 5)

	// obama only ever received replies.
	_, err := svc.ListDMs(context.Background(), "obama")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ListDMs(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplyTo(t *testing.T) {
	t.Parallel()

	store := seededStore()
	svc := newTestService(store, 5)

	reply, err := svc.ReplyTo(context.Background(), "1", "thanks")
	require.NoError(t, err)
	assert.Equal(t, "7", reply.ID)
	assert.Equal(t, "1", reply.ParentID)
	assert.Equal(t, "jackie_chan", reply.To)
	assert.Equal(t, "j-otterbox", reply.From)
	assert.Equal(t, "thanks", reply.Body)
	assert.Equal(t, uint64(7), store.count())
}

func TestReplyToQuickReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "matching label", text: "yes", want: "ok!"},
		{name: "unknown label", text: "maybe", want: "maybe"},
		{name: "case sensitive", text: "YES", want: "YES"},
		{name: "no partial match", text: "yes please", want: "yes please"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := seededStore()
			store.put(&model.DirectMessage{
				ID:           "1",
				Timestamp:    "2023-01-01 00:00:01.000000",
				To:           "j-otterbox",
				From:         "jackie_chan",
				Body:         "hello j-otterbox! -jackie",
				QuickReplies: map[string]string{"yes": "ok!", "no": "not today"},
			})
			svc := newTestService(store, 5)

			reply, err := svc.ReplyTo(context.Background(), "1", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Body)
			assert.Equal(t, "jackie_chan", reply.To)
			assert.Equal(t, "j-otterbox", reply.From)
		})
	}
}

func TestReplyToReply(t *testing.T) {
	t.Parallel()

	store := seededStore()
	svc := newTestService(store, 5)

	reply, err := svc.ReplyTo(context.Background(), "4", "hey")
	require.NoError(t, err)
	assert.Equal(t, "4", reply.ParentID)
	assert.Equal(t, "j-otterbox", reply.To)
	assert.Equal(t, "obama", reply.From)
}

func TestReplyToErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parent  string
		text    string
		wantErr error
	}{
		{name: "empty reply", parent: "1", text: "", wantErr: ErrInvalidInput},
		{name: "blank reply", parent: "1", text: "   ", wantErr: ErrInvalidInput},
		{name: "missing parent", parent: "42", text: "hello", wantErr: ErrNotFound},
		{name: "counter is not a message", parent: model.CounterID, text: "hello", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := seededStore()
			svc := newTestService(store, 5)

			_, err := svc.ReplyTo(context.Background(), tt.parent, tt.text)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, uint64(6), store.count(), "no id should be consumed")
		})
	}
}

func TestReplyToLookupFailure(t *testing.T) {
	t.Parallel()

	store := seededStore()
	store.getErr = errors.New("timeout")
	svc := newTestService(store, 5)

	_, err := svc.ReplyTo(context.Background(), "1", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListReplies(t *testing.T) {
	t.Parallel()

	svc := newTestService(seededStore(), 5)

	replies, err := svc.ListReplies(context.Background(), "2")
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, []string{"4", "5", "6"}, []string{replies[0].ID, replies[1].ID, replies[2].ID})

	_, err = svc.ListReplies(context.Background(), "6")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentSendsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	const senders = 20
	store := seededStore()
	svc := newTestService(store, senders+5)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendDM(context.Background(), "bob", fmt.Sprintf("user%d", i), "hi", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	dms, err := svc.ListDMs(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, dms, senders)
	assert.Equal(t, uint64(6+senders), store.count())
}
