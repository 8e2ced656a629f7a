package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func bulkErr(codes ...int) error {
	var wes []mongo.BulkWriteError
	for i, c := range codes {
		wes = append(wes, mongo.BulkWriteError{WriteError: mongo.WriteError{Index: i, Code: c, Message: "boom"}})
	}
	return mongo.BulkWriteException{WriteErrors: wes}
}

func TestClassifyBulkInsertCountsDuplicatesAsSkipped(t *testing.T) {
	res, err := classifyBulkInsert(10, bulkErr(11000, 11000, 11000))
	assert.NoError(t, err)
	assert.Equal(t, InsertResult{Inserted: 7, Skipped: 3}, res)
}

func TestClassifyBulkInsertSurfacesOtherFailures(t *testing.T) {
	res, err := classifyBulkInsert(5, bulkErr(11000, 121))
	assert.Error(t, err)
	assert.Equal(t, InsertResult{Inserted: 3, Skipped: 1}, res)
}

func TestClassifyBulkInsertPassThrough(t *testing.T) {
	res, err := classifyBulkInsert(4, nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, res.Inserted)

	boom := errors.New("network down")
	_, err = classifyBulkInsert(4, boom)
	assert.ErrorIs(t, err, boom)
}

func TestWrapError(t *testing.T) {
	assert.ErrorIs(t, wrapError(mongo.ErrNoDocuments), ErrNotFound)
	assert.Nil(t, wrapError(nil))
}
