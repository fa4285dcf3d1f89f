package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docsync/internal/document/model"
	"docsync/pkg/logger"
)

// MongoStore keeps each document as a single record with its shares, links
// and versions embedded. Comments live in their own collection.
type MongoStore struct {
	docs     *mongo.Collection
	comments *mongo.Collection
}

// NewMongoStore wires the collections of db and ensures the indexes the
// lookups rely on, including global uniqueness of link tokens.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{docs: db.Collection("documents"), comments: db.Collection("comments")}

	_, err := s.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{
			Keys: bson.D{{Key: "shareableLinks.token", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"shareableLinks.token": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("document indexes: %w", err)
	}
	_, err = s.comments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "sectionId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "parentCommentId", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("comment indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Insert(ctx context.Context, doc *model.Document) error {
	rec := *doc
	// $push fails on null fields, so embedded arrays are always stored as arrays.
	if rec.ShareWith == nil {
		rec.ShareWith = []model.Share{}
	}
	if rec.ShareableLinks == nil {
		rec.ShareableLinks = []model.ShareableLink{}
	}
	if rec.Versions == nil {
		rec.Versions = []model.Version{}
	}
	if _, err := s.docs.InsertOne(ctx, rec); err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return err
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, kind, key string) (*model.Document, error) {
	var doc model.Document
	err := s.docs.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(kind, key)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load %s %s: %v", kind, key, err)
		return nil, err
	}
	return &doc, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return s.findOne(ctx, bson.M{"_id": id}, "document", id)
}

func (s *MongoStore) FindByLinkToken(ctx context.Context, token string) (*model.Document, error) {
	return s.findOne(ctx, bson.M{"shareableLinks.token": token}, "link", token)
}

func (s *MongoStore) FindByOwner(ctx context.Context, ownerID string) ([]model.DocumentSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.M{"title": 1, "ownerId": 1, "createdAt": 1, "updatedAt": 1})
	cur, err := s.docs.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, err
	}
	defer cur.Close(ctx)

	out := []model.DocumentSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) updateByID(ctx context.Context, id string, update bson.M) error {
	res, err := s.docs.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		logger.Sugar.Errorf("Failed to update doc %s: %v", id, err)
		return err
	}
	if res.MatchedCount == 0 {
		return notFound("document", id)
	}
	return nil
}

func (s *MongoStore) UpdateContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{"content": content, "updatedAt": updatedAt}})
}

// AppendVersion pushes and trims in one atomic update.
func (s *MongoStore) AppendVersion(ctx context.Context, docID string, v model.Version, keep int) error {
	return s.updateByID(ctx, docID, bson.M{"$push": bson.M{"versions": bson.M{
		"$each":  []model.Version{v},
		"$slice": -keep,
	}}})
}

func (s *MongoStore) PutShare(ctx context.Context, docID string, share model.Share) error {
	res, err := s.docs.UpdateOne(ctx,
		bson.M{"_id": docID, "shareWith.userId": share.UserID},
		bson.M{"$set": bson.M{"shareWith.$.role": share.Role}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.docs.UpdateOne(ctx,
		bson.M{"_id": docID, "shareWith.userId": bson.M{"$ne": share.UserID}},
		bson.M{"$push": bson.M{"shareWith": share}})
	if err != nil {
		logger.Sugar.Errorf("Failed to share doc %s with %s: %v", docID, share.UserID, err)
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// Either the document is gone or a concurrent call added the same user.
	n, err := s.docs.CountDocuments(ctx, bson.M{"_id": docID})
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("document", docID)
	}
	return nil
}

func (s *MongoStore) RemoveShare(ctx context.Context, docID, userID string) error {
	res, err := s.docs.UpdateOne(ctx,
		bson.M{"_id": docID, "shareWith.userId": userID},
		bson.M{"$pull": bson.M{"shareWith": bson.M{"userId": userID}}})
	if err != nil {
		logger.Sugar.Errorf("Failed to revoke share of doc %s for %s: %v", docID, userID, err)
		return err
	}
	if res.MatchedCount == 0 {
		return notFound("share", userID)
	}
	return nil
}

func (s *MongoStore) AddLink(ctx context.Context, docID string, link model.ShareableLink) error {
	err := s.updateByID(ctx, docID, bson.M{"$push": bson.M{"shareableLinks": link}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrTokenTaken
	}
	return err
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
		return err
	}
	if res.DeletedCount == 0 {
		return notFound("document", id)
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"documentId": id}); err != nil {
		logger.Sugar.Errorf("Failed to delete comments of doc %s: %v", id, err)
		return err
	}
	return nil
}

func (s *MongoStore) InsertComment(ctx context.Context, c *model.Comment) error {
	n, err := s.docs.CountDocuments(ctx, bson.M{"_id": c.DocumentID})
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("document", c.DocumentID)
	}
	if _, err := s.comments.InsertOne(ctx, c); err != nil {
		logger.Sugar.Errorf("Failed to add comment to doc %s: %v", c.DocumentID, err)
		return err
	}
	return nil
}

func (s *MongoStore) FindComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := s.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("comment", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) FindComments(ctx context.Context, docID, sectionID string) ([]model.Comment, error) {
	filter := bson.M{"documentId": docID}
	if sectionID != "" {
		filter["sectionId"] = sectionID
	}
	cur, err := s.comments.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		logger.Sugar.Errorf("Failed to get comments for doc %s: %v", docID, err)
		return nil, err
	}
	defer cur.Close(ctx)

	out := []model.Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteComment walks the reply tree level by level and removes it in one call.
func (s *MongoStore) DeleteComment(ctx context.Context, id string) error {
	if _, err := s.FindComment(ctx, id); err != nil {
		return err
	}

	all := []string{id}
	frontier := []string{id}
	for len(frontier) > 0 {
		cur, err := s.comments.Find(ctx,
			bson.M{"parentCommentId": bson.M{"$in": frontier}},
			options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return err
		}
		var children []struct {
			ID string `bson:"_id"`
		}
		err = cur.All(ctx, &children)
		cur.Close(ctx)
		if err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, c := range children {
			frontier = append(frontier, c.ID)
			all = append(all, c.ID)
		}
	}

	if _, err := s.comments.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": all}}); err != nil {
		logger.Sugar.Errorf("Failed to delete comment %s: %v", id, err)
		return err
	}
	return nil
}
