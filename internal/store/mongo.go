package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sells-group/leadscout/internal/model"
)

// MongoStore implements Store using the official mongo driver.
type MongoStore struct {
	client     *mongo.Client
	leads      *mongo.Collection
	jobs       *mongo.Collection
	rejections *mongo.Collection
}

// NewMongo connects to MongoDB and binds the pipeline collections.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "mongo: connect")}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "mongo: ping")}
	}

	dbHandle := client.Database(database)
	return &MongoStore{
		client:     client,
		leads:      dbHandle.Collection("leads"),
		jobs:       dbHandle.Collection("jobs"),
		rejections: dbHandle.Collection("rejections"),
	}, nil
}

// Migrate creates the unique key index leads deduplicate on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.leads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return eris.Wrap(err, "mongo: create lead key index")
	}

	_, err = s.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "state", Value: 1}},
	})
	return eris.Wrap(err, "mongo: create job state index")
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// UpsertLead reads, merges, and replaces by key. The unique index turns a
// true race into a duplicate-key error, reported as CONFLICT for retry.
func (s *MongoStore) UpsertLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	var existing *model.Lead
	var found model.Lead
	err := s.leads.FindOne(ctx, bson.M{"key": lead.Key}).Decode(&found)
	if err == nil {
		existing = &found
	} else if err != mongo.ErrNoDocuments {
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrap(err, "mongo: read existing lead")}
	}

	merged := mergeLead(existing, lead, time.Now().UTC())

	_, err = s.leads.ReplaceOne(ctx,
		bson.M{"key": merged.Key},
		merged,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &Error{Code: CodeConflict, Err: eris.Wrapf(err, "mongo: upsert lead %s", merged.Key)}
		}
		return nil, &Error{Code: CodeUnavailable, Err: eris.Wrapf(err, "mongo: upsert lead %s", merged.Key)}
	}
	return &merged, nil
}

func (s *MongoStore) GetLead(ctx context.Context, key string) (*model.Lead, error) {
	var lead model.Lead
	err := s.leads.FindOne(ctx, bson.M{"key": key}).Decode(&lead)
	if err == mongo.ErrNoDocuments {
		return nil, eris.Errorf("lead not found: %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "mongo: get lead")
	}
	return &lead, nil
}

func (s *MongoStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := bson.M{}
	if filter.Tier != "" {
		query["tier"] = string(filter.Tier)
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.SourceID != "" {
		query["sourceid"] = filter.SourceID
	}
	if filter.MinScore > 0 {
		query["score"] = bson.M{"$gte": filter.MinScore}
	}

	limit := int64(filter.Limit)
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "updatedat", Value: -1}}).
		SetLimit(limit).
		SetSkip(int64(filter.Offset))

	cursor, err := s.leads.Find(ctx, query, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list leads")
	}
	defer cursor.Close(ctx)

	var leads []model.Lead
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, eris.Wrap(err, "mongo: decode leads")
	}
	return leads, nil
}

func (s *MongoStore) SaveJob(ctx context.Context, job model.ScrapingJob) error {
	_, err := s.jobs.ReplaceOne(ctx,
		bson.M{"id": job.ID},
		job,
		options.Replace().SetUpsert(true),
	)
	return eris.Wrapf(err, "mongo: save job %s", job.ID)
}

func (s *MongoStore) GetJob(ctx context.Context, jobID string) (*model.ScrapingJob, error) {
	var job model.ScrapingJob
	err := s.jobs.FindOne(ctx, bson.M{"id": jobID}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "mongo: get job")
	}
	return &job, nil
}

func (s *MongoStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := bson.M{}
	if filter.State != "" {
		query["state"] = string(filter.State)
	}
	if filter.SourceID != "" {
		query["source.id"] = filter.SourceID
	}

	limit := int64(filter.Limit)
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdat", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.jobs.Find(ctx, query, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list jobs")
	}
	defer cursor.Close(ctx)

	var jobs []model.ScrapingJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, eris.Wrap(err, "mongo: decode jobs")
	}
	return jobs, nil
}

func (s *MongoStore) LogRejection(ctx context.Context, rejection model.Rejection) error {
	if rejection.ID == "" {
		rejection.ID = uuid.NewString()
	}
	if rejection.CreatedAt.IsZero() {
		rejection.CreatedAt = time.Now().UTC()
	}
	_, err := s.rejections.InsertOne(ctx, rejection)
	return eris.Wrap(err, "mongo: log rejection")
}
