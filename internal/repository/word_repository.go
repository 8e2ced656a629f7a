package repository

import (
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// WordRepo stores word documents.  Callers must run ProjectHistory before
// Create, Replace or InsertMany so the flattened stage fields match the map.
type WordRepo struct {
	vocabCollection[model.Word]
}

// NewWordRepo wraps the words collection.
func NewWordRepo(col *mongo.Collection) *WordRepo {
	return &WordRepo{vocabCollection[model.Word]{col: col, key: func(w *model.Word) string { return w.Word }}}
}
