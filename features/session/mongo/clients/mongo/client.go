// Package mongo hosts the MongoDB client used by the thread store.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/agentwire/protocol"
	"goa.design/agentwire/session"
)

const (
	defaultThreadsCollection = "agent_threads"
	defaultOpTimeout         = 5 * time.Second
	sessionClientName        = "session-mongo"
)

// Client exposes Mongo-backed operations for thread persistence.
type Client interface {
	health.Pinger

	LoadThread(ctx context.Context, threadID string) (session.Thread, error)
	SaveThread(ctx context.Context, thread session.Thread) error
	DeleteThread(ctx context.Context, threadID string) error
}

// Options configures the Mongo thread client.
type Options struct {
	Client            *mongodriver.Client
	Database          string
	ThreadsCollection string
	Timeout           time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	threads collection
	timeout time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	threadsCollection := opts.ThreadsCollection
	if threadsCollection == "" {
		threadsCollection = defaultThreadsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(threadsCollection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	wrapper := mongoCollection{coll: coll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, wrapper, timeout)
}

func (c *client) Name() string {
	return sessionClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) LoadThread(ctx context.Context, threadID string) (session.Thread, error) {
	if threadID == "" {
		return session.Thread{}, errors.New("thread id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"thread_id": threadID}
	var doc threadDocument
	if err := c.threads.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return session.Thread{}, session.ErrThreadNotFound
		}
		return session.Thread{}, err
	}
	return doc.toThread()
}

func (c *client) SaveThread(ctx context.Context, thread session.Thread) error {
	if thread.ThreadID == "" {
		return errors.New("thread id is required")
	}
	doc, err := fromThread(thread)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"thread_id": thread.ThreadID}
	_, err = c.threads.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (c *client) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}
	// Load first so eviction never orphans an outstanding tool call. Callers
	// follow a single-writer discipline per thread id, so the gap between the
	// check and the delete is not racy in practice.
	thread, err := c.LoadThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.HasPendingToolCalls() {
		return session.ErrPendingToolCalls
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"thread_id": threadID}
	res, err := c.threads.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return session.ErrThreadNotFound
	}
	return nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}

// threadDocument is the persisted shape of a thread. Messages and state are
// stored as JSON text so arbitrary state documents round-trip without picking
// up BSON-specific types.
type threadDocument struct {
	ThreadID         string    `bson:"thread_id"`
	Messages         string    `bson:"messages,omitempty"`
	State            string    `bson:"state,omitempty"`
	ProcessedIDs     []string  `bson:"processed_message_ids,omitempty"`
	PendingToolCalls []string  `bson:"pending_tool_call_ids,omitempty"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func fromThread(thread session.Thread) (threadDocument, error) {
	doc := threadDocument{
		ThreadID:         thread.ThreadID,
		ProcessedIDs:     thread.ProcessedIDs(),
		PendingToolCalls: thread.PendingToolCallIDs(),
		UpdatedAt:        thread.UpdatedAt.UTC(),
	}
	if len(thread.Messages) > 0 {
		raw, err := json.Marshal(thread.Messages)
		if err != nil {
			return threadDocument{}, fmt.Errorf("encode messages: %w", err)
		}
		doc.Messages = string(raw)
	}
	if thread.State != nil {
		raw, err := json.Marshal(thread.State)
		if err != nil {
			return threadDocument{}, fmt.Errorf("encode state: %w", err)
		}
		doc.State = string(raw)
	}
	return doc, nil
}

func (doc threadDocument) toThread() (session.Thread, error) {
	thread := session.NewThread(doc.ThreadID)
	thread.UpdatedAt = doc.UpdatedAt
	if doc.Messages != "" {
		var msgs []protocol.Message
		if err := json.Unmarshal([]byte(doc.Messages), &msgs); err != nil {
			return session.Thread{}, fmt.Errorf("decode messages: %w", err)
		}
		thread.Messages = msgs
	}
	if doc.State != "" {
		var state any
		if err := json.Unmarshal([]byte(doc.State), &state); err != nil {
			return session.Thread{}, fmt.Errorf("decode state: %w", err)
		}
		thread.State = state
	}
	thread.MarkProcessed(doc.ProcessedIDs...)
	for _, id := range doc.PendingToolCalls {
		thread.OpenToolCall(id)
	}
	return thread, nil
}

func ensureIndexes(ctx context.Context, threadsColl collection) error {
	threadIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := threadsColl.Indexes().CreateOne(ctx, threadIndex); err != nil {
		return err
	}
	return nil
}

func newClientWithCollection(mongoClient *mongodriver.Client, threadsColl collection, timeout time.Duration) (*client, error) {
	if threadsColl == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:   mongoClient,
		threads: threadsColl,
		timeout: timeout,
	}, nil
}

// collection narrows the driver surface so tests can substitute fakes.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	ReplaceOne(ctx context.Context, filter any, replacement any,
		opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) ReplaceOne(ctx context.Context, filter any, replacement any,
	opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
