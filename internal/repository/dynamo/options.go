package dynamo

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Client].
type Option func(*Options)

// Options holds the configuration for a [Client].
type Options struct {
	dynamoDBAPI     API
	endpoint        string
	tableWaitPeriod time.Duration
	readCapacity    int64
	writeCapacity   int64
}

func newOptions() *Options {
	return &Options{
		tableWaitPeriod: 2 * time.Minute,
		readCapacity:    5,
		writeCapacity:   5,
	}
}

func (o *Options) validate() error {
	if o.tableWaitPeriod <= 0 {
		return errors.New("table wait period must be greater than zero")
	}

	if o.readCapacity <= 0 || o.writeCapacity <= 0 {
		return errors.New("provisioned throughput must be greater than zero")
	}

	return nil
}

// WithAPI sets a custom [API] implementation, typically a mock in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.dynamoDBAPI = api
	}
}

// WithEndpoint points the client at a non-default endpoint such as DynamoDB
// Local. Ignored when [WithAPI] is used.
func WithEndpoint(endpoint string) Option {
	return func(o *Options) {
		o.endpoint = endpoint
	}
}

// WithTableWaitPeriod bounds how long [Client.Reset] waits for a freshly
// created table to become active. The default is 2 minutes.
func WithTableWaitPeriod(d time.Duration) Option {
	return func(o *Options) {
		o.tableWaitPeriod = d
	}
}

// WithProvisionedThroughput sets the read and write capacity units used when
// [Client.Reset] creates the table. Indexes get one unit each.
func WithProvisionedThroughput(read, write int64) Option {
	return func(o *Options) {
		o.readCapacity = read
		o.writeCapacity = write
	}
}
