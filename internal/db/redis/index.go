package redis

import (
	"context"
	"errors"
	"iter"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragmail/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name. Documents are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// VectorDim reads the DIM of a vector field from FT.INFO. It returns
// db.ErrIndexNotFound for a missing index and 0 when the reply carries no
// dimension for the field.
func (s *Store) VectorDim(ctx context.Context, name, field string) (int, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	msg, err := s.do(ctx, cmd).ToMessage()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	dim, _ := findVectorDim(msg, field)
	return dim, nil
}

// findVectorDim walks an FT.INFO reply for the attribute named field.
// Redis lists attributes as flat key/value arrays with "dim"; valkey-search
// nests "dimensions" under "vector_params". Both RESP2 arrays and RESP3 maps
// are accepted.
func findVectorDim(msg rueidis.RedisMessage, field string) (int, bool) {
	if describesField(msg, field) {
		if dim, ok := dimIn(msg); ok {
			return dim, true
		}
	}
	for _, child := range children(msg) {
		if dim, ok := findVectorDim(child, field); ok {
			return dim, true
		}
	}
	return 0, false
}

func describesField(msg rueidis.RedisMessage, field string) bool {
	for key, val := range pairs(msg) {
		if key != "identifier" && key != "attribute" {
			continue
		}
		if v, err := val.ToString(); err == nil && v == field {
			return true
		}
	}
	return false
}

func dimIn(msg rueidis.RedisMessage) (int, bool) {
	for key, val := range pairs(msg) {
		if key == "dim" || key == "dimensions" {
			if n, err := val.AsInt64(); err == nil && n > 0 {
				return int(n), true
			}
		}
	}
	for _, child := range children(msg) {
		if dim, ok := dimIn(child); ok {
			return dim, true
		}
	}
	return 0, false
}

// pairs yields lower-cased keys of a map reply or of an even-length array
// whose even elements are strings.
func pairs(msg rueidis.RedisMessage) iter.Seq2[string, rueidis.RedisMessage] {
	return func(yield func(string, rueidis.RedisMessage) bool) {
		if msg.IsMap() {
			m, err := msg.AsMap()
			if err != nil {
				return
			}
			for k, v := range m {
				if !yield(strings.ToLower(k), v) {
					return
				}
			}
			return
		}
		if !msg.IsArray() {
			return
		}
		vals, err := msg.ToArray()
		if err != nil || len(vals)%2 != 0 {
			return
		}
		for i := 0; i < len(vals); i += 2 {
			if !vals[i].IsString() {
				return
			}
		}
		for i := 0; i < len(vals); i += 2 {
			k, _ := vals[i].ToString()
			if !yield(strings.ToLower(k), vals[i+1]) {
				return
			}
		}
	}
}

func children(msg rueidis.RedisMessage) []rueidis.RedisMessage {
	if msg.IsMap() {
		m, err := msg.AsMap()
		if err != nil {
			return nil
		}
		out := make([]rueidis.RedisMessage, 0, len(m))
		for _, v := range m {
			out = append(out, v)
		}
		return out
	}
	if msg.IsArray() {
		vals, _ := msg.ToArray()
		return vals
	}
	return nil
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	storage := idx.StorageType
	if storage == "" {
		storage = db.StorageHash
	}
	args := []string{idx.Name, "ON", string(storage)}

	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}

	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}

	switch f.Type {
	case db.IndexFieldText:
		return []string{f.Name, "TEXT"}, nil
	case db.IndexFieldVector:
		vectorArgs, err := buildVectorFieldArgs(f)
		if err != nil {
			return nil, err
		}
		return append([]string{f.Name}, vectorArgs...), nil
	default:
		return nil, errors.New("unknown field type")
	}
}

func buildVectorFieldArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	algo := f.VectorAlgo
	if algo == "" {
		algo = db.VectorFlat
	}
	distance := f.VectorDistance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(distance),
	}
	if algo == db.VectorHNSW {
		if f.VectorM > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
		}
		if f.VectorEFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
		}
	}

	out := make([]string, 0, 3+len(attrs))
	out = append(out, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	return append(out, attrs...), nil
}
