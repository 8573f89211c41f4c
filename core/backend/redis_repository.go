package backend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/relabs-tech/campus/core"
)

// redisRepository stores every record of a resource as a hash "<prefix>:<table>:<id>".
// Identifiers come from the counter "<prefix>:<table>:id", the sorted set
// "<prefix>:<table>:all" holds all identifiers scored by their value.
type redisRepository struct {
	rdb redis.UniversalClient
	rc  *ResourceConfiguration
	key string
}

// RedisRepositories returns a factory for redis backed repositories. All keys start with prefix.
func RedisRepositories(rdb redis.UniversalClient, prefix string) RepositoryFactory {
	return func(rc *ResourceConfiguration) (Repository, error) {
		return &redisRepository{rdb: rdb, rc: rc, key: prefix + ":" + rc.Table}, nil
	}
}

func (r *redisRepository) recordKey(id int64) string {
	return r.key + ":" + strconv.FormatInt(id, 10)
}

func (r *redisRepository) indexKey() string {
	return r.key + ":all"
}

func (r *redisRepository) decode(id int64, hash map[string]string) (Record, error) {
	record := r.rc.NewRecord()
	record.ID = id
	for _, field := range r.rc.Fields {
		s, ok := hash[field.Name]
		if !ok {
			return record, fmt.Errorf("%s is missing field %s", r.recordKey(id), field.Name)
		}
		v, err := field.parseValue(s)
		if err != nil {
			return record, fmt.Errorf("%s field %s: %w", r.recordKey(id), field.Name, err)
		}
		record.Values[field.Name] = v
	}
	return record, nil
}

func (r *redisRepository) encode(record Record) map[string]interface{} {
	hash := make(map[string]interface{}, len(r.rc.Fields))
	for _, field := range r.rc.Fields {
		switch v := record.Values[field.Name].(type) {
		case bool:
			hash[field.Name] = strconv.FormatBool(v)
		case core.LocalDateTime:
			hash[field.Name] = v.String()
		default:
			hash[field.Name] = fmt.Sprint(v)
		}
	}
	return hash
}

func (r *redisRepository) FindAll(ctx context.Context) ([]Record, error) {
	members, err := r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot read index %s: %w", r.indexKey(), err)
	}
	ids := make([]int64, len(members))
	for i, member := range members {
		if ids[i], err = strconv.ParseInt(member, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid member '%s' in index %s", member, r.indexKey())
		}
	}

	cmds, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HGetAll(ctx, r.recordKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", r.key, err)
	}

	records := make([]Record, 0, len(ids))
	for i, cmd := range cmds {
		hash := cmd.(*redis.MapStringStringCmd).Val()
		if len(hash) == 0 { // deleted in the meantime
			continue
		}
		record, err := r.decode(ids[i], hash)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *redisRepository) FindByID(ctx context.Context, id int64) (Record, bool, error) {
	hash, err := r.rdb.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("cannot read %s: %w", r.recordKey(id), err)
	}
	if len(hash) == 0 {
		return Record{}, false, nil
	}
	record, err := r.decode(id, hash)
	return record, err == nil, err
}

func (r *redisRepository) Save(ctx context.Context, record Record) (Record, error) {
	if record.ID == 0 {
		id, err := r.rdb.Incr(ctx, r.key+":id").Result()
		if err != nil {
			return record, fmt.Errorf("cannot allocate id for %s: %w", r.key, err)
		}
		record.ID = id
	}
	key := r.recordKey(record.ID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, r.encode(record))
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(record.ID), Member: strconv.FormatInt(record.ID, 10)})
		return nil
	})
	if err != nil {
		return record, fmt.Errorf("cannot write %s: %w", key, err)
	}
	return record, nil
}

func (r *redisRepository) Delete(ctx context.Context, record Record) error {
	key := r.recordKey(record.ID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, r.indexKey(), strconv.FormatInt(record.ID, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot delete %s: %w", key, err)
	}
	return nil
}
