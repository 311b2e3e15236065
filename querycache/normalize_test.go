package querycache_test

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/querycache"
)

type testUser struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
	secret string
}

// account exposes its attributes explicitly, like an ORM record would.
type account struct {
	id    int
	owner *account
}

func (a *account) Attributes() map[string]any {
	return map[string]any{"id": a.id}
}

func TestNormalize_Absent(t *testing.T) {
	var nilUser *testUser
	var nilSlice []testUser
	var nilMap map[string]any
	var nilAccount *account

	for name, in := range map[string]any{
		"nil":         nil,
		"nil pointer": nilUser,
		"nil slice":   nilSlice,
		"nil map":     nilMap,
		"nil record":  nilAccount,
	} {
		got, err := querycache.Normalize(in)
		if err != nil {
			t.Fatalf("%s: Normalize() error = %v", name, err)
		}
		if got != nil {
			t.Errorf("%s: expected nil, got %#v", name, got)
		}
	}
}

func TestNormalize_Record(t *testing.T) {
	a := &account{id: 7}
	a.owner = a

	got, err := querycache.Normalize(a)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := map[string]any{"id": 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %#v, want %#v", got, want)
	}
}

func TestNormalize_StructFlattened(t *testing.T) {
	got, err := querycache.Normalize(&testUser{ID: 1, Name: "Ada", secret: "x"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["name"] != "Ada" || m["id"] != float64(1) {
		t.Errorf("unexpected attributes: %#v", m)
	}
	if _, ok := m["secret"]; ok {
		t.Error("unexported fields must not leak into cached attributes")
	}
}

func TestNormalize_SequenceOrderPreserved(t *testing.T) {
	users := []*testUser{
		{ID: 1, Name: "Ada", Email: "ada@example.com", Active: true},
		{ID: 2, Name: "Linus", Email: "linus@example.com"},
	}

	got, err := querycache.Normalize(users)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	testsupport.CompareJSONWithGolden(t, "normalized_users.json", got)
}

func TestNormalize_Scalars(t *testing.T) {
	for _, in := range []any{42, int64(3), 3.5, "text", true} {
		got, err := querycache.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%v) error = %v", in, err)
		}
		if got != in {
			t.Errorf("expected scalar %v to pass through, got %v", in, got)
		}
	}
}

func TestNormalize_NestedMapsAndTimes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := querycache.Normalize(map[string]any{
		"count": 2,
		"rows":  []testUser{{ID: 1}},
		"at":    ts,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	m := got.(map[string]any)
	if m["at"] != "2024-01-02T03:04:05Z" {
		t.Errorf("expected time in its JSON form, got %#v", m["at"])
	}
	rows, ok := m["rows"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one normalized row, got %#v", m["rows"])
	}
	if _, ok := rows[0].(map[string]any); !ok {
		t.Errorf("expected row flattened to a map, got %T", rows[0])
	}
}

func TestNormalize_RoundTrip(t *testing.T) {
	cases := map[string]any{
		"absent": nil,
		"record": &testUser{ID: 1, Name: "Ada"},
		"list":   []testUser{{ID: 1}, {ID: 2}},
		"scalar": 12.5,
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			normalized, err := querycache.Normalize(in)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}

			data, err := json.Marshal(normalized)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var decoded any
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			again, err := json.Marshal(decoded)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(again) != string(data) {
				t.Errorf("round trip changed value: %s != %s", again, data)
			}
		})
	}
}

func TestNormalize_Unserializable(t *testing.T) {
	_, err := querycache.Normalize(struct{ F float64 }{F: math.Inf(1)})
	if err == nil {
		t.Fatal("expected error for unserializable record")
	}
	if !cache.IsSerializationError(err) {
		t.Errorf("expected serialization error, got %v", err)
	}
}
