package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/franzego/coursenotify/internal/notification"
)

const usersCollection = "users"

// Enrollment arrays on the user document, one per course type.
var bucketFields = map[notification.CourseBucket]string{
	notification.BucketInPerson:   "myInPersonCourses",
	notification.BucketLiveOnline: "myLiveCourses",
	notification.BucketSelfPaced:  "mySelfPacedCourses",
}

type userContact struct {
	Email     string `bson:"email"`
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
}

// UserRepository answers the recipient queries against the users collection.
type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(usersCollection)}
}

func (r *UserRepository) FindEnrolledUsers(ctx context.Context, courseID string, bucket notification.CourseBucket, statuses []string) ([]notification.Recipient, error) {
	filter, err := enrolledFilter(courseID, bucket, statuses)
	if err != nil {
		return nil, err
	}
	return r.findContacts(ctx, filter)
}

func (r *UserRepository) FindOptedInUsers(ctx context.Context, criteria notification.OptInCriteria) ([]notification.Recipient, error) {
	return r.findContacts(ctx, optInFilter(criteria))
}

func (r *UserRepository) findContacts(ctx context.Context, filter bson.M) ([]notification.Recipient, error) {
	opts := options.Find().SetProjection(contactProjection)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	var contacts []userContact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	out := make([]notification.Recipient, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, notification.Recipient{Email: c.Email, FirstName: c.FirstName, LastName: c.LastName})
	}
	return out, nil
}

var contactProjection = bson.M{"_id": 0, "email": 1, "firstName": 1, "lastName": 1}

// courseRef matches enrollments that stored the course id either as an
// ObjectID or as its hex string.
func courseRef(courseID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(courseID); err == nil {
		return bson.M{"$in": bson.A{oid, courseID}}
	}
	return courseID
}

func enrolledFilter(courseID string, bucket notification.CourseBucket, statuses []string) (bson.M, error) {
	field, ok := bucketFields[bucket]
	if !ok {
		return nil, errors.Newf("unknown course bucket %q", bucket)
	}
	return bson.M{
		field: bson.M{
			"$elemMatch": bson.M{
				"courseId":         courseRef(courseID),
				"enrollmentStatus": bson.M{"$in": statuses},
			},
		},
	}, nil
}

func optInFilter(c notification.OptInCriteria) bson.M {
	filter := bson.M{}
	if c.Confirmed {
		filter["isConfirmed"] = true
	}
	if c.Unlocked {
		filter["isLocked"] = bson.M{"$ne": true}
	}
	if c.EmailEnabled {
		filter["notificationSettings.email"] = true
	}
	if c.CourseUpdates {
		filter["notificationSettings.courseUpdates"] = true
	}
	return filter
}
