package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	md := Metadata{
		"category": String("tech"),
		"price":    Number(15),
		"featured": Bool(true),
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter matches", nil, true},
		{"eq string match", Eq("category", String("tech")), true},
		{"eq string no match", Eq("category", String("sports")), false},
		{"eq kind mismatch", Eq("price", String("15")), false},
		{"eq bool", Eq("featured", Bool(true)), true},
		{"ne different value", Ne("category", String("sports")), true},
		{"ne same value", Ne("category", String("tech")), false},
		{"ne kind mismatch", Ne("price", String("15")), true},
		{"ne missing key", Ne("missing", String("x")), false},
		{"gt", Gt("price", 10), true},
		{"gt equal", Gt("price", 15), false},
		{"gte equal", Gte("price", 15), true},
		{"lt", Lt("price", 20), true},
		{"lt false", Lt("price", 15), false},
		{"lte equal", Lte("price", 15), true},
		{"gt on string is non-match", Gt("category", 0), false},
		{"lt on bool is non-match", Lt("featured", 5), false},
		{"in string", In("category", String("news"), String("tech")), true},
		{"in number", In("price", Number(1), Number(15)), true},
		{"in not found", In("category", String("news")), false},
		{"in never matches bool", In("featured", Bool(true)), false},
		{"nin not in set", Nin("category", String("news")), true},
		{"nin in set", Nin("category", String("tech")), false},
		{"nin never matches bool", Nin("featured", Bool(false)), false},
		{"missing key", Eq("missing", String("tech")), false},
		{"empty and matches", And(), true},
		{"empty or does not match", Or(), false},
		{"and all true", And(Eq("category", String("tech")), Gt("price", 10)), true},
		{"and one false", And(Eq("category", String("tech")), Gt("price", 100)), false},
		{"or one true", Or(Eq("category", String("news")), Eq("featured", Bool(true))), true},
		{"or all false", Or(Eq("category", String("news")), Lt("price", 1)), false},
		{"nested", Or(And(Gte("price", 10), Lte("price", 20)), Eq("category", String("x"))), true},
		{"unknown op", &Filter{Op: "$regex", Key: "category", Value: String("t")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(md, tt.filter))
			assert.Equal(t, tt.want, tt.filter.Matches(md))
		})
	}
}

func TestEvaluate_ShortCircuits(t *testing.T) {
	md := Metadata{"a": Number(1)}
	// The second child would not match either way; the point is that evaluation stops early
	// and a nil child after a decisive one is never reached.
	assert.False(t, Evaluate(md, And(Eq("a", Number(2)), nil)))
	assert.True(t, Evaluate(md, Or(Eq("a", Number(1)), Eq("a", Number(2)))))
}

func TestEvaluate_EmptyMetadata(t *testing.T) {
	assert.False(t, Evaluate(nil, Eq("a", Number(1))))
	assert.True(t, Evaluate(nil, nil))
	assert.True(t, Evaluate(Metadata{}, And()))
}

func TestParseFilter(t *testing.T) {
	md := Metadata{
		"category": String("x"),
		"price":    Number(12),
		"tag":      String("b"),
		"featured": Bool(false),
	}
	tests := []struct {
		name string
		json string
		want bool
	}{
		{"shorthand eq", `{"category": "x"}`, true},
		{"shorthand eq bool", `{"featured": false}`, true},
		{"operator object", `{"price": {"$gte": 10, "$lt": 20}}`, true},
		{"operator object out of range", `{"price": {"$gt": 12}}`, false},
		{"in", `{"tag": {"$in": ["a", "b"]}}`, true},
		{"nin", `{"tag": {"$nin": ["a", "b"]}}`, false},
		{"or", `{"$or": [{"category": "y"}, {"price": {"$lte": 12}}]}`, true},
		{"and", `{"$and": [{"category": "x"}, {"tag": {"$ne": "b"}}]}`, false},
		{"sibling keys are anded", `{"category": "x", "tag": "c"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Evaluate(md, f))
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	for _, in := range []string{
		`[]`,
		`{"$xor": []}`,
		`{"price": {"$gt": "ten"}}`,
		`{"price": {"$like": 1}}`,
		`{"tag": {"$in": "a"}}`,
		`{"$or": {"a": 1}}`,
		`{"a": [1, 2]}`,
		`{}`,
		`null`,
		`{"category": {}}`,
		`{"$and": []}`,
		`{"$or": [{}]}`,
		`{"$or": null}`,
	} {
		t.Run(in, func(t *testing.T) {
			f, err := ParseFilter([]byte(in))
			assert.ErrorIs(t, err, ErrInvalidFilter)
			assert.Nil(t, f)
		})
	}
}

func TestFilter_MarshalJSONParsesBack(t *testing.T) {
	f := Or(
		And(Eq("category", String("x")), Gte("price", 10)),
		In("tag", String("a"), Number(3)),
		Nin("tag", String("z")),
	)
	data, err := json.Marshal(f)
	require.NoError(t, err)

	parsed, err := ParseFilter(data)
	require.NoError(t, err)

	for _, md := range []Metadata{
		{"category": String("x"), "price": Number(11)},
		{"tag": Number(3)},
		{"tag": String("q")},
		{"category": String("y"), "price": Number(11)},
		{},
	} {
		assert.Equal(t, Evaluate(md, f), Evaluate(md, parsed), "metadata %v", md)
	}
}
