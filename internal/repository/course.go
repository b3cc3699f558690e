package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/franzego/coursenotify/internal/models"
	"github.com/franzego/coursenotify/internal/notification"
)

const coursesCollection = "courses"

type CourseRepository struct {
	collection *mongo.Collection
}

func NewCourseRepository(db *mongo.Database) *CourseRepository {
	return &CourseRepository{collection: db.Collection(coursesCollection)}
}

func (r *CourseRepository) Create(ctx context.Context, c *models.Course) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, c); err != nil {
		return errors.Wrap(err, "insert course")
	}
	return nil
}

// FindByID returns nil and no error when the course does not exist or the id
// is not a valid object id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var c models.Course
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find course %s", id)
	}
	return &c, nil
}

// Update replaces the stored document. It reports false when nothing matched.
func (r *CourseRepository) Update(ctx context.Context, c *models.Course) (bool, error) {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return false, errors.Wrapf(err, "update course %s", c.ID.Hex())
	}
	return res.MatchedCount > 0, nil
}

func (r *CourseRepository) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, errors.Wrapf(err, "delete course %s", id)
	}
	return res.DeletedCount > 0, nil
}

// FindCourseByID serves the scheduler's fire-time re-read.
func (r *CourseRepository) FindCourseByID(ctx context.Context, courseID string) (*notification.CourseSnapshot, error) {
	c, err := r.FindByID(ctx, courseID)
	if err != nil || c == nil {
		return nil, err
	}
	s := c.Snapshot()
	return &s, nil
}
