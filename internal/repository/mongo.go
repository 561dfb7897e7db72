package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/techtuto2024/techtuto-backend/internal/model"
)

const classCollection = "classdetails"

// MongoStore keeps one collection per role (students, mentors, managers).
// Collection handles are resolved once here and shared by every request.
type MongoStore struct {
	client     *mongo.Client
	partitions map[model.Role]*mongo.Collection
	classes    *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	partitions := make(map[model.Role]*mongo.Collection, len(model.Roles))
	for _, role := range model.Roles {
		partitions[role] = db.Collection(role.Partition())
	}
	return &MongoStore{
		client:     client,
		partitions: partitions,
		classes:    db.Collection(classCollection),
	}
}

// EnsureIndexes creates a unique email index per partition. It cannot span
// collections, so global uniqueness still relies on the directory scan.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, role := range model.Roles {
		_, err := s.partitions[role].Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		})
		if err != nil {
			return fmt.Errorf("%s indexes: %w", role.Partition(), err)
		}
	}
	_, err := s.classes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "studentId", Value: 1}, {Key: "startsAt", Value: 1}}},
		{Keys: bson.D{{Key: "mentorId", Value: 1}, {Key: "startsAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%s indexes: %w", classCollection, err)
	}
	return nil
}

type countryDocument struct {
	Name     string `bson:"name"`
	Timezone string `bson:"timezone"`
}

type userDocument struct {
	ID                  string          `bson:"_id"`
	Name                string          `bson:"name"`
	Email               string          `bson:"email"`
	Role                string          `bson:"role"`
	UserID              string          `bson:"userId"`
	Password            string          `bson:"password"`
	Avatar              *model.Avatar   `bson:"avatar,omitempty"`
	Country             countryDocument `bson:"country"`
	ResetPasswordToken  *string         `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpire *time.Time      `bson:"resetPasswordExpire,omitempty"`
	CreatedAt           time.Time       `bson:"createdAt"`
	UpdatedAt           time.Time       `bson:"updatedAt"`
}

type classDocument struct {
	ID               string    `bson:"_id"`
	StudentID        string    `bson:"studentId"`
	MentorID         string    `bson:"mentorId"`
	SubjectName      string    `bson:"subjectName"`
	ClassLink        string    `bson:"classLink"`
	ClassDate        string    `bson:"classDate"`
	ClassTime        string    `bson:"classTime"`
	StartsAt         time.Time `bson:"startsAt"`
	StudentTimezone  string    `bson:"studentTimezone"`
	MentorTimezone   string    `bson:"mentorTimezone"`
	StudentClassDate string    `bson:"studentClassDate"`
	StudentClassTime string    `bson:"studentClassTime"`
	MentorClassDate  string    `bson:"mentorClassDate"`
	MentorClassTime  string    `bson:"mentorClassTime"`
	CreatedAt        time.Time `bson:"createdAt"`
}

func (s *MongoStore) FindOne(ctx context.Context, query model.UserQuery) (model.User, error) {
	if query.Empty() {
		return model.User{}, ErrNotFound
	}
	filter := userFilter(query)
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	for _, role := range model.Roles {
		var doc userDocument
		err := s.partitions[role].FindOne(ctx, filter, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return model.User{}, fmt.Errorf("%s lookup: %w", role.Partition(), err)
		}
		return doc.toModel(), nil
	}
	return model.User{}, ErrNotFound
}

func (s *MongoStore) Insert(ctx context.Context, user model.User) error {
	coll, ok := s.partitions[user.Role]
	if !ok {
		return fmt.Errorf("unknown role %q", user.Role)
	}
	_, err := coll.InsertOne(ctx, userDocumentFrom(user))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s.email", ErrDuplicate, user.Role.Partition())
	}
	return err
}

func (s *MongoStore) UpdateByID(ctx context.Context, role model.Role, id string, patch model.UserPatch) error {
	coll, ok := s.partitions[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	set := bson.M{}
	unset := bson.M{}
	if patch.PasswordHash != nil {
		set["password"] = *patch.PasswordHash
	}
	if patch.ClearResetToken {
		unset["resetPasswordToken"] = ""
		unset["resetPasswordExpire"] = ""
	} else {
		if patch.ResetTokenHash != nil {
			set["resetPasswordToken"] = *patch.ResetTokenHash
		}
		if patch.ResetTokenExpires != nil {
			set["resetPasswordExpire"] = *patch.ResetTokenExpires
		}
	}
	if !patch.UpdatedAt.IsZero() {
		set["updatedAt"] = patch.UpdatedAt
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}
	filter := bson.M{"_id": id}
	if patch.Guard != nil {
		filter["resetPasswordToken"] = patch.Guard.TokenHash
		filter["resetPasswordExpire"] = bson.M{"$gt": patch.Guard.ValidAt}
	}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertClass(ctx context.Context, class model.ScheduledClass) error {
	_, err := s.classes.InsertOne(ctx, classDocument(class))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, classCollection)
	}
	return err
}

func (s *MongoStore) ListClasses(ctx context.Context, filter model.ClassFilter) ([]model.ScheduledClass, error) {
	query := bson.M{}
	if filter.StudentID != "" {
		query["studentId"] = filter.StudentID
	}
	if filter.MentorID != "" {
		query["mentorId"] = filter.MentorID
	}
	cursor, err := s.classes.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "startsAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []classDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	classes := make([]model.ScheduledClass, 0, len(docs))
	for _, doc := range docs {
		classes = append(classes, model.ScheduledClass(doc))
	}
	return classes, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func userFilter(query model.UserQuery) bson.M {
	filter := bson.M{}
	if query.ID != "" {
		filter["_id"] = query.ID
	}
	if query.Email != "" {
		filter["email"] = query.Email
	}
	if query.UserID != "" {
		filter["userId"] = query.UserID
	}
	if query.ResetTokenHash != "" {
		filter["resetPasswordToken"] = query.ResetTokenHash
	}
	if query.ResetExpiresAfter != nil {
		filter["resetPasswordExpire"] = bson.M{"$gt": *query.ResetExpiresAfter}
	}
	return filter
}

func userDocumentFrom(user model.User) userDocument {
	return userDocument{
		ID:                  user.ID,
		Name:                user.Name,
		Email:               user.Email,
		Role:                string(user.Role),
		UserID:              user.UserID,
		Password:            user.PasswordHash,
		Avatar:              user.Avatar,
		Country:             countryDocument{Name: user.CountryName, Timezone: user.Timezone},
		ResetPasswordToken:  user.ResetTokenHash,
		ResetPasswordExpire: user.ResetTokenExpires,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

func (d userDocument) toModel() model.User {
	return model.User{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		Role:              model.Role(d.Role),
		UserID:            d.UserID,
		PasswordHash:      d.Password,
		Avatar:            d.Avatar,
		CountryName:       d.Country.Name,
		Timezone:          d.Country.Timezone,
		ResetTokenHash:    d.ResetPasswordToken,
		ResetTokenExpires: d.ResetPasswordExpire,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
