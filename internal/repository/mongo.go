package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habittracker/internal/model"
	"habittracker/pkg/config"
	"habittracker/pkg/metrics"
	"habittracker/pkg/otel"
	"habittracker/pkg/util"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	habitsCollection   = "habits"
	sessionsCollection = "user_sessions"
)

type habitDoc struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"user_id"`
	Name            string     `bson:"name"`
	Category        string     `bson:"category"`
	X1              int        `bson:"x1"`
	X2              int        `bson:"x2"`
	CreatedAt       time.Time  `bson:"created_at"`
	LastTrackedDate *time.Time `bson:"last_tracked_date,omitempty"`
	CompletedDates  []string   `bson:"completed_dates"`
	MissedDates     []string   `bson:"missed_dates"`
	Version         int64      `bson:"version"`
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
	LastUsed  time.Time `bson:"last_used"`
}

func toHabitDoc(h model.Habit) habitDoc {
	return habitDoc{
		ID:              h.ID,
		UserID:          h.UserID,
		Name:            h.Name,
		Category:        string(h.Category),
		X1:              h.X1,
		X2:              h.X2,
		CreatedAt:       h.CreatedAt.UTC(),
		LastTrackedDate: h.LastTrackedDate,
		CompletedDates:  nonNil(h.CompletedDates),
		MissedDates:     nonNil(h.MissedDates),
		Version:         h.Version,
	}
}

func (d habitDoc) model() model.Habit {
	return model.Habit{
		ID:              d.ID,
		UserID:          d.UserID,
		Name:            d.Name,
		Category:        model.Category(d.Category),
		X1:              d.X1,
		X2:              d.X2,
		CreatedAt:       d.CreatedAt,
		LastTrackedDate: d.LastTrackedDate,
		CompletedDates:  nonNil(d.CompletedDates),
		MissedDates:     nonNil(d.MissedDates),
		Version:         d.Version,
	}
}

// MongoStore keeps habits and sessions in MongoDB. Events go to the sink after each write.
type MongoStore struct {
	client   *mongo.Client
	habits   *mongo.Collection
	sessions *mongo.Collection
	sink     EventSink
	logger   *zap.Logger
}

// NewMongoStore connects, pings and creates the indexes the queries rely on.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, sink EventSink, logger *zap.Logger) (*MongoStore, error) {
	logger.Info("Connecting to MongoDB", zap.String("database", cfg.Database))

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(3*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		habits:   db.Collection(habitsCollection),
		sessions: db.Collection(sessionsCollection),
		sink:     sink,
		logger:   logger,
	}

	_, err = s.habits.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create habit index: %w", err)
	}
	_, err = s.sessions.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "last_used", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create session index: %w", err)
	}

	logger.Info("MongoDB connection established successfully")
	return s, nil
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) Ping(ctx context.Context) error {
	return classifyMongo(s.client.Ping(ctx, nil))
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ListHabits(ctx context.Context, owner string) ([]model.Habit, error) {
	return s.findHabits(ctx, "list_habits", bson.M{"user_id": owner})
}

func (s *MongoStore) ListAllHabits(ctx context.Context) ([]model.Habit, error) {
	return s.findHabits(ctx, "list_all_habits", bson.M{})
}

func (s *MongoStore) findHabits(ctx context.Context, operation string, filter bson.M) ([]model.Habit, error) {
	habits := make([]model.Habit, 0)
	err := s.observe(ctx, operation, habitsCollection, func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
		cur, err := s.habits.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		var docs []habitDoc
		if err := cur.All(ctx, &docs); err != nil {
			return err
		}
		for _, d := range docs {
			habits = append(habits, d.model())
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to list habits", zap.String("operation", operation), zap.Error(err))
		return nil, err
	}
	return habits, nil
}

func (s *MongoStore) GetHabit(ctx context.Context, owner, id string) (model.Habit, error) {
	var doc habitDoc
	err := s.observe(ctx, "get_habit", habitsCollection, func(ctx context.Context) error {
		return s.habits.FindOne(ctx, bson.M{"_id": id, "user_id": owner}).Decode(&doc)
	})
	if err != nil {
		return model.Habit{}, err
	}
	return doc.model(), nil
}

func (s *MongoStore) CreateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	h.Version = 1
	err := s.observe(ctx, "create_habit", habitsCollection, func(ctx context.Context) error {
		_, err := s.habits.InsertOne(ctx, toHabitDoc(h))
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		s.logger.Error("Failed to insert habit", zap.String("habit_id", h.ID), zap.Error(err))
		return model.Habit{}, err
	}

	publishEvents(ctx, s.sink, s.logger, events)
	return h, nil
}

func (s *MongoStore) UpdateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	doc := toHabitDoc(h)
	err := s.observe(ctx, "update_habit", habitsCollection, func(ctx context.Context) error {
		set := bson.M{
			"name":            doc.Name,
			"category":        doc.Category,
			"x1":              doc.X1,
			"x2":              doc.X2,
			"completed_dates": doc.CompletedDates,
			"missed_dates":    doc.MissedDates,
		}
		update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
		if doc.LastTrackedDate != nil {
			set["last_tracked_date"] = doc.LastTrackedDate
		} else {
			update["$unset"] = bson.M{"last_tracked_date": ""}
		}

		res, err := s.habits.UpdateOne(ctx,
			bson.M{"_id": h.ID, "user_id": h.UserID, "version": h.Version},
			update,
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			n, err := s.habits.CountDocuments(ctx, bson.M{"_id": h.ID, "user_id": h.UserID})
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrConflict
			}
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
			s.logger.Error("Failed to update habit", zap.String("habit_id", h.ID), zap.Error(err))
		}
		return model.Habit{}, err
	}

	publishEvents(ctx, s.sink, s.logger, events)
	h.Version++
	return h, nil
}

func (s *MongoStore) DeleteHabit(ctx context.Context, owner, id string, events ...model.Event) error {
	err := s.observe(ctx, "delete_habit", habitsCollection, func(ctx context.Context) error {
		res, err := s.habits.DeleteOne(ctx, bson.M{"_id": id, "user_id": owner})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	publishEvents(ctx, s.sink, s.logger, events)
	return nil
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	var doc sessionDoc
	err := s.observe(ctx, "get_session", sessionsCollection, func(ctx context.Context) error {
		return s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return model.Session{}, err
	}
	return model.Session(doc), nil
}

func (s *MongoStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	err := s.observe(ctx, "list_sessions", sessionsCollection, func(ctx context.Context) error {
		opts := options.Find().
			SetSort(bson.D{{Key: "last_used", Value: -1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit))
		cur, err := s.sessions.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		var docs []sessionDoc
		if err := cur.All(ctx, &docs); err != nil {
			return err
		}
		for _, d := range docs {
			sessions = append(sessions, model.Session(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *MongoStore) SaveSession(ctx context.Context, sess model.Session) (model.Session, error) {
	var saved sessionDoc
	err := s.observe(ctx, "save_session", sessionsCollection, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return s.sessions.FindOneAndUpdate(ctx,
			bson.M{"_id": sess.ID},
			bson.M{
				"$set":         bson.M{"name": sess.Name, "last_used": sess.LastUsed.UTC()},
				"$setOnInsert": bson.M{"created_at": sess.CreatedAt.UTC()},
			},
			opts,
		).Decode(&saved)
	})
	if err != nil {
		s.logger.Error("Failed to save session", zap.String("session_id", sess.ID), zap.Error(err))
		return model.Session{}, err
	}
	return model.Session(saved), nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	return s.observe(ctx, "delete_session", sessionsCollection, func(ctx context.Context) error {
		res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *MongoStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.observe(ctx, "touch_session", sessionsCollection, func(ctx context.Context) error {
		_, err := s.sessions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_used": at.UTC()}})
		return err
	})
}

func (s *MongoStore) observe(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.StoreSpan(ctx, "mongodb", operation, fn)
	metrics.RecordDBQueryDuration(operation, collection, time.Since(start))
	return classifyMongo(err)
}

func classifyMongo(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok, kind := util.IsUnavailableError(err); ok {
		return fmt.Errorf("%w (%s): %v", ErrUnavailable, kind, err)
	}
	return err
}
