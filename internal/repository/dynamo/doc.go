// Package dynamo provides the DynamoDB implementation of
// [repository.MessageRepository].
//
// # Table layout
//
// All records live in one table (default name "Messages"). The primary key is
// the message id ("messageId", hash) plus its creation time ("timestamp",
// range). Direct messages carry typeId "dm", replies carry typeId "rep" and an
// "in-reply-to" attribute naming their parent. The record with messageId "0"
// is the id counter; its "numRecords" attribute holds the number of ids handed
// out so far.
//
// Two Global Secondary Indexes, both projecting all attributes, serve the list
// queries:
//
//   - [IndexTo]: every message addressed to a user.
//   - [IndexInReplyTo]: every reply to a message.
//
// # Id allocation
//
// [Client.IncrementCounter] is a conditional UpdateItem: it only succeeds when
// numRecords still holds the value the caller read, so two allocators can never
// hand out the same id.
//
// # Concurrency
//
// [Client] is safe for concurrent use by multiple goroutines once
// [Client.Connect] has returned.
package dynamo
