package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
)

// DeadLetterRepoMongoDB implementa logDomain.DeadLetterStore sobre una colección.
type DeadLetterRepoMongoDB struct {
	coll *mongo.Collection
}

func NewDeadLetterRepoMongoDB(client *mongo.Client, dbName string) *DeadLetterRepoMongoDB {
	return &DeadLetterRepoMongoDB{coll: client.Database(dbName).Collection("dead_letters")}
}

// mongoDeadLetter mapea el documento BSON.
type mongoDeadLetter struct {
	Key           string    `bson:"_id,omitempty"`
	ConsumerGroup string    `bson:"consumerGroup"`
	Partition     int       `bson:"partition"`
	Position      int64     `bson:"position"`
	EventID       string    `bson:"eventId,omitempty"`
	EventType     string    `bson:"eventType,omitempty"`
	Raw           []byte    `bson:"raw"`
	Reason        string    `bson:"reason"`
	Attempts      int       `bson:"attempts"`
	FailedAt      time.Time `bson:"failedAt"`
}

// Send inserta la carta si no existe. _id es la Key, así un reenvío no duplica.
func (r *DeadLetterRepoMongoDB) Send(ctx context.Context, letter logDomain.DeadLetter) error {
	doc := toMongoDeadLetter(letter)

	filter := bson.M{"_id": doc.Key}
	// El _id lo pone el filtro del upsert.
	insert := doc
	insert.Key = ""
	update := bson.M{"$setOnInsert": insert}
	opts := options.Update().SetUpsert(true)

	if _, err := r.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("mongo dead letter %s: %w", doc.Key, err)
	}
	return nil
}

// List devuelve las cartas más recientes primero.
func (r *DeadLetterRepoMongoDB) List(ctx context.Context, limit int) ([]logDomain.DeadLetter, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var letters []logDomain.DeadLetter
	for cursor.Next(ctx) {
		var doc mongoDeadLetter
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		letters = append(letters, fromMongoDeadLetter(&doc))
	}
	return letters, cursor.Err()
}

func toMongoDeadLetter(l logDomain.DeadLetter) mongoDeadLetter {
	doc := mongoDeadLetter{
		Key:           l.Key(),
		ConsumerGroup: l.ConsumerGroup,
		Partition:     l.Partition,
		Position:      int64(l.Position),
		Raw:           l.Raw,
		Reason:        l.Reason,
		Attempts:      l.Attempts,
		FailedAt:      l.FailedAt.UTC(),
	}
	if l.Envelope != nil {
		doc.EventID = l.Envelope.ID
		doc.EventType = l.Envelope.Type.String()
	}
	return doc
}

func fromMongoDeadLetter(doc *mongoDeadLetter) logDomain.DeadLetter {
	return logDomain.DeadLetter{
		ConsumerGroup: doc.ConsumerGroup,
		Partition:     doc.Partition,
		Position:      logDomain.Position(doc.Position),
		Envelope:      logDomain.RestoreEnvelope(doc.Raw, doc.Attempts),
		Raw:           doc.Raw,
		Reason:        doc.Reason,
		Attempts:      doc.Attempts,
		FailedAt:      doc.FailedAt,
	}
}

// Verificación en tiempo de compilación.
var _ logDomain.DeadLetterStore = (*DeadLetterRepoMongoDB)(nil)
