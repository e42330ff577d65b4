// Package seed loads the sample conversation the service ships with: two DMs
// to j-otterbox and four replies, with the id counter at 6.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/repository"
)

// Records returns the counter followed by the six sample messages, stamped
// one microsecond apart starting at now.
func Records(now time.Time) []model.Record {
	ts := func(i int) string {
		return model.FormatTimestamp(now.Add(time.Duration(i) * time.Microsecond))
	}
	return []model.Record{
		&model.Counter{Timestamp: ts(0), RecordCount: 6},
		&model.DirectMessage{ID: "1", Timestamp: ts(1), To: "j-otterbox", From: "jackie_chan", Body: "hello j-otterbox! -jackie"},
		&model.DirectMessage{ID: "2", Timestamp: ts(2), To: "j-otterbox", From: "obama", Body: "hello j-otterbox! -obama"},
		&model.Reply{ID: "3", Timestamp: ts(3), ParentID: "1", To: "jackie_chan", From: "j-otterbox", Body: "hello jackie! replying to your earlier msg"},
		&model.Reply{ID: "4", Timestamp: ts(4), ParentID: "2", To: "obama", From: "j-otterbox", Body: "hello obama! -j-otterbox"},
		&model.Reply{ID: "5", Timestamp: ts(5), ParentID: "2", To: "obama", From: "j-otterbox", Body: "really? you gonna leave me on read?"},
		&model.Reply{ID: "6", Timestamp: ts(6), ParentID: "2", To: "obama", From: "j-otterbox", Body: "testing message"},
	}
}

// Run wipes the store when it supports it and writes [Records].
func Run(ctx context.Context, repo repository.MessageRepository, now time.Time) error {
	if r, ok := repo.(repository.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}
	for _, rec := range Records(now) {
		if err := repo.Insert(ctx, rec); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.RecordID(), err)
		}
	}
	return nil
}
