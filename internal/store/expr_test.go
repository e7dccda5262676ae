package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseExpression_SimpleEquality(t *testing.T) {
	out, err := ParseExpression(`metadata.tag == "gpu"`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"metadata.tag": bson.M{"$eq": "gpu"}}, out)
}

func TestParseExpression_In(t *testing.T) {
	out, err := ParseExpression(`metadata.tag in ["a", "b"]`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"metadata.tag": bson.M{"$in": bson.A{"a", "b"}}}, out)
}

func TestParseExpression_AndOr(t *testing.T) {
	out, err := ParseExpression(`n > 1 and n < 10`)
	require.NoError(t, err)
	and, ok := out["$and"].(bson.A)
	require.True(t, ok)
	assert.Len(t, and, 2)
}

func TestParseExpression_Not(t *testing.T) {
	out, err := ParseExpression(`not n == 1`)
	require.NoError(t, err)
	field, ok := out["n"].(bson.M)
	require.True(t, ok)
	_, ok = field["$not"]
	assert.True(t, ok)
}

func TestParseExpression_NotCompound(t *testing.T) {
	out, err := ParseExpression(`not (n == 1 and m == 2)`)
	require.NoError(t, err)
	nor, ok := out["$nor"].(bson.A)
	require.True(t, ok)
	assert.Len(t, nor, 1)
}

func TestParseExpression_RejectsGarbage(t *testing.T) {
	_, err := ParseExpression(`n === 1`)
	assert.Error(t, err)
}

func TestParseExpression_Numbers(t *testing.T) {
	out, err := ParseExpression(`priority >= 10`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"priority": bson.M{"$gte": int64(10)}}, out)
}
