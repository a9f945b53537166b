package redis

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragmail/internal/db"
)

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	if err := NewStoreForTest(c).Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	if err := NewStoreForTest(c).Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestWaitForReady_ImmediatePong(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	if err := NewStoreForTest(c).WaitForReady(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "ragmail:policy:chunk_0" && slices.Contains(cmd, "__content")
		})).
		Return(mock.Result(mock.RedisInt64(2)))

	err := NewStoreForTest(c).HSet(context.Background(), "ragmail:policy:chunk_0", map[string]string{
		"__content": "leave",
		"__vector":  "\x00\x00\x80\x3f",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "HSET" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	err := NewStoreForTest(c).HSet(context.Background(), "k", map[string]string{"f": "v"})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestHSetMulti(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.ErrorResult(context.Canceled),
		})

	err := NewStoreForTest(c).HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "a", Fields: map[string]string{"f": "1"}},
		{Key: "b", Fields: map[string]string{"f": "2"}},
	})
	if !isDBError(err) {
		t.Fatalf("expected db.Error for second item, got %v", err)
	}

	if err := NewStoreForTest(c).HSetMulti(context.Background(), nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestHGetAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "present")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"__content": mock.RedisString("text"),
		})))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "missing")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	s := NewStoreForTest(c)
	m, err := s.HGetAll(context.Background(), "present")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["__content"] != "text" {
		t.Errorf("__content = %q, want text", m["__content"])
	}

	if _, err := s.HGetAll(context.Background(), "missing"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestDelAndExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().Do(gomock.Any(), mock.Match("DEL", "k")).Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().Do(gomock.Any(), mock.Match("EXISTS", "k")).Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	ok, err := s.Exists(context.Background(), "k")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("expected key to be absent")
	}
}

func TestCreateIndex(t *testing.T) {
	def, err := db.NewIndex("ragmail:policy:idx").
		Prefix("ragmail:policy:").
		Text("__content").
		VectorHNSW("__vector", 3, db.DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tests := []struct {
		name    string
		result  rueidis.RedisResult
		wantErr error
	}{
		{"created", mock.Result(mock.RedisString("OK")), nil},
		{"exists", mock.Result(mock.RedisError("Index already exists")), db.ErrIndexExists},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
					return cmd[0] == "FT.CREATE" && cmd[1] == "ragmail:policy:idx" &&
						slices.Contains(cmd, "HNSW") && slices.Contains(cmd, "COSINE")
				})).
				Return(tc.result)

			err := NewStoreForTest(c).CreateIndex(context.Background(), def)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	err := NewStoreForTest(c).DropIndex(context.Background(), "idx")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "present")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("present"))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "absent")).
		Return(mock.Result(mock.RedisError("Unknown index name")))

	s := NewStoreForTest(c)
	if ok, err := s.IndexExists(context.Background(), "present"); err != nil || !ok {
		t.Errorf("present: ok=%v err=%v", ok, err)
	}
	if ok, err := s.IndexExists(context.Background(), "absent"); err != nil || ok {
		t.Errorf("absent: ok=%v err=%v", ok, err)
	}
}

func TestVectorDim(t *testing.T) {
	redisAttr := mock.RedisArray(
		mock.RedisString("identifier"), mock.RedisString("__vector"),
		mock.RedisString("attribute"), mock.RedisString("__vector"),
		mock.RedisString("type"), mock.RedisString("VECTOR"),
		mock.RedisString("algorithm"), mock.RedisString("HNSW"),
		mock.RedisString("data_type"), mock.RedisString("FLOAT32"),
		mock.RedisString("dim"), mock.RedisInt64(3072),
		mock.RedisString("distance_metric"), mock.RedisString("COSINE"),
	)
	textAttr := mock.RedisArray(
		mock.RedisString("identifier"), mock.RedisString("__content"),
		mock.RedisString("attribute"), mock.RedisString("__content"),
		mock.RedisString("type"), mock.RedisString("TEXT"),
	)
	valkeyField := mock.RedisMap(map[string]rueidis.RedisMessage{
		"identifier": mock.RedisString("__vector"),
		"type":       mock.RedisString("VECTOR"),
		"vector_params": mock.RedisMap(map[string]rueidis.RedisMessage{
			"algorithm":       mock.RedisString("HNSW"),
			"dimensions":      mock.RedisString("1536"),
			"distance_metric": mock.RedisString("COSINE"),
		}),
	})

	tests := []struct {
		name    string
		reply   rueidis.RedisResult
		want    int
		wantErr error
	}{
		{
			name: "redis attributes",
			reply: mock.Result(mock.RedisArray(
				mock.RedisString("index_name"), mock.RedisString("idx"),
				mock.RedisString("attributes"), mock.RedisArray(textAttr, redisAttr),
				mock.RedisString("num_docs"), mock.RedisString("12"),
			)),
			want: 3072,
		},
		{
			name: "valkey fields",
			reply: mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"index_name": mock.RedisString("idx"),
				"fields":     mock.RedisArray(valkeyField),
			})),
			want: 1536,
		},
		{
			name: "no such field",
			reply: mock.Result(mock.RedisArray(
				mock.RedisString("index_name"), mock.RedisString("idx"),
				mock.RedisString("attributes"), mock.RedisArray(textAttr),
			)),
			want: 0,
		},
		{
			name:    "unknown index",
			reply:   mock.Result(mock.RedisError("Unknown index name")),
			wantErr: db.ErrIndexNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "idx")).Return(tc.reply)

			got, err := NewStoreForTest(c).VectorDim(context.Background(), "idx", "__vector")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("dim = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBuildCreateArgs(t *testing.T) {
	def := &db.IndexDefinition{
		Name:     "idx",
		Prefixes: []string{"p:"},
		Fields: []db.IndexField{
			{Name: "__content", Type: db.IndexFieldText},
			{Name: "__vector", Type: db.IndexFieldVector, VectorDim: 4, VectorAlgo: db.VectorHNSW, VectorM: 8},
		},
	}
	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"idx", "ON", "HASH", "PREFIX", "1", "p:", "SCHEMA",
		"__content", "TEXT",
		"__vector", "VECTOR", "HNSW", "8", "TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "COSINE", "M", "8",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args =\n%v\nwant\n%v", args, want)
	}

	if _, err := buildCreateArgs(&db.IndexDefinition{Name: "idx"}); err == nil {
		t.Error("expected error for empty fields")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "v", Type: db.IndexFieldVector}); err == nil {
		t.Error("expected error for zero dim")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "x", Type: db.IndexFieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "idx" &&
				cmd[2] == "*=>[KNN 2 @__vector $BLOB AS __vector_score]"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("p:chunk_3"),
			mock.RedisArray(
				mock.RedisString("__vector_score"), mock.RedisString("0.4"),
				mock.RedisString("__content"), mock.RedisString("second"),
			),
			mock.RedisString("p:chunk_1"),
			mock.RedisArray(
				mock.RedisString("__vector_score"), mock.RedisString("0.1"),
				mock.RedisString("__content"), mock.RedisString("first"),
			),
		)))

	res, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "idx",
		Vector:       []float32{0.1, 0.2},
		K:            2,
		ReturnFields: []string{"__content"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].Key != "p:chunk_1" || res.Entries[0].Fields["__content"] != "first" {
		t.Errorf("entries not ordered by similarity: %+v", res.Entries)
	}
	if res.Entries[0].Score < 0.89 || res.Entries[0].Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", res.Entries[0].Score)
	}
	if _, ok := res.Entries[0].Fields["__vector_score"]; ok {
		t.Error("score field should be stripped from Fields")
	}
}

func TestSearchKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	res, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "idx", Vector: []float32{1}, K: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(res.Entries))
	}
}

func TestSearchKNN_Errors(t *testing.T) {
	tests := []struct {
		name   string
		result rueidis.RedisResult
		check  func(error) bool
	}{
		{"unknown index", mock.Result(mock.RedisError("Unknown index name")), func(err error) bool {
			return errors.Is(err, db.ErrIndexNotFound)
		}},
		{"transport", mock.ErrorResult(context.DeadlineExceeded), isDBError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
				Return(tc.result)

			_, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
				IndexName: "idx", Vector: []float32{1}, K: 1,
			})
			if !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	for _, q := range []*db.KNNQuery{
		{Vector: []float32{0.1}, K: 10},
		{IndexName: "idx", K: 10},
		{IndexName: "idx", Vector: []float32{0.1}},
	} {
		if _, err := s.SearchKNN(ctx, q); err == nil {
			t.Errorf("expected error for %+v", q)
		}
	}
}

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
