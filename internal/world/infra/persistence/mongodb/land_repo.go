package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
	"LandVerse/internal/world/infra/persistence/model"
)

const defaultCollectionName = "lands"

type LandRepository struct {
	coll *mongo.Collection
}

var _ port.LandRepository = (*LandRepository)(nil)

func NewLandRepository(db *mongo.Database) *LandRepository {
	return &LandRepository{
		coll: db.Collection(defaultCollectionName),
	}
}

// EnsureIndexes 建坐标和地主索引，重复调用无副作用。
func (r *LandRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	})
	return err
}

func (r *LandRepository) InBounds(ctx context.Context, b domain.Bounds) ([]domain.LandRecord, error) {
	filter := bson.M{
		"x": bson.M{"$gte": b.MinX, "$lte": b.MaxX},
		"y": bson.M{"$gte": b.MinY, "$lte": b.MaxY},
	}
	return r.find(ctx, filter, nil)
}

func (r *LandRepository) ByCoords(ctx context.Context, x, y int) (domain.LandRecord, error) {
	var doc model.LandDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": model.DocID(x, y)}).Decode(&doc)
	if err == nil {
		return model.DocToRecord(doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.LandRecord{}, domain.ErrLandUnclaimed
	}
	return domain.LandRecord{}, err
}

func (r *LandRepository) ByOwner(ctx context.Context, ownerID int64) ([]domain.LandRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "y", Value: 1}, {Key: "x", Value: 1}})
	return r.find(ctx, bson.M{"owner_id": ownerID}, opts)
}

func (r *LandRepository) Save(ctx context.Context, rec domain.LandRecord) error {
	doc := model.RecordToDoc(rec)
	_, err := r.coll.ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *LandRepository) Delete(ctx context.Context, x, y int) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": model.DocID(x, y)})
	return err
}

func (r *LandRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.LandRecord, error) {
	var cur *mongo.Cursor
	var err error
	if opts != nil {
		cur, err = r.coll.Find(ctx, filter, opts)
	} else {
		cur, err = r.coll.Find(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	var docs []model.LandDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.LandRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := model.DocToRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
