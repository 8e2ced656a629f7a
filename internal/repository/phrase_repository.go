package repository

import (
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// PhraseRepo stores phrase documents.
type PhraseRepo struct {
	vocabCollection[model.Phrase]
}

// NewPhraseRepo wraps the phrases collection.
func NewPhraseRepo(col *mongo.Collection) *PhraseRepo {
	return &PhraseRepo{vocabCollection[model.Phrase]{col: col, key: func(p *model.Phrase) string { return p.Word }}}
}
