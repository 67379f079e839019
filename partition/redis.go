package partition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/xerrors"
)

// Lua 返回值：>= 0 为领取到的值
const (
	redisExhausted = -1
	redisNotFound  = -2
)

// claimScript 原子地检查并自增 current
//
// KEYS[1] 分区哈希，KEYS[2] 可用集合，ARGV[1] 分区 ID。
// current 用 HINCRBY 写回，避免 Lua 数字转字符串时丢失精度。
var claimScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'current')
if not cur then
	return -2
end
cur = tonumber(cur)
local last = tonumber(redis.call('HGET', KEYS[1], 'range_end'))
if cur >= last then
	redis.call('SREM', KEYS[2], ARGV[1])
	return -1
end
redis.call('HINCRBY', KEYS[1], 'current', 1)
if cur + 1 >= last then
	redis.call('SREM', KEYS[2], ARGV[1])
end
return cur
`)

// RedisStore 基于 Redis 的分区存储
//
// 每个分区一个哈希，另有全部分区集合与未耗尽分区集合。键使用 {prefix} hash tag，
// 保证在集群模式下落在同一槽位。
type RedisStore struct {
	client *redis.Client
	logger clog.Logger
	prefix string
}

// NewRedisStore 创建 Redis 分区存储，连接器必须已连接
func NewRedisStore(conn connector.RedisConnector, opts ...Option) (*RedisStore, error) {
	if conn == nil {
		return nil, xerrors.Wrap(ErrNilClient, "redis connector is nil")
	}
	client := conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrapf(connector.ErrNotConnected, "redis connector %s", conn.Name())
	}
	o := applyOptions(opts)
	return &RedisStore{
		client: client,
		logger: o.logger.With(clog.String("backend", "redis")),
		prefix: "{" + o.keyPrefix + "}",
	}, nil
}

func (s *RedisStore) partitionKey(id int64) string {
	return fmt.Sprintf("%s:partition:%d", s.prefix, id)
}

func (s *RedisStore) allKey() string {
	return s.prefix + ":partitions"
}

func (s *RedisStore) availableKey() string {
	return s.prefix + ":available"
}

func (s *RedisStore) Claim(ctx context.Context, id int64) (int64, error) {
	v, err := claimScript.Run(ctx, s.client,
		[]string{s.partitionKey(id), s.availableKey()}, id).Int64()
	if err != nil {
		return 0, s.classify(err)
	}
	switch v {
	case redisExhausted:
		s.logger.Debug("partition exhausted", clog.Int64("partition_id", id))
		return 0, xerrors.Wrapf(ErrExhaustedPartition, "id %d", id)
	case redisNotFound:
		return 0, xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
	}
	return v, nil
}

func (s *RedisStore) ListAvailable(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.availableKey()).Result()
	if err != nil {
		return nil, xerrors.Wrap(s.classify(err), "list available partitions")
	}
	return parseIDs(members)
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*Partition, error) {
	fields, err := s.client.HGetAll(ctx, s.partitionKey(id)).Result()
	if err != nil {
		return nil, xerrors.Wrapf(s.classify(err), "get partition %d", id)
	}
	if len(fields) == 0 {
		return nil, xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
	}
	return decodeHash(id, fields)
}

func (s *RedisStore) Insert(ctx context.Context, partitions []Partition) error {
	if len(partitions) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range partitions {
			p := &partitions[i]
			pipe.HSet(ctx, s.partitionKey(p.ID),
				"range_start", p.RangeStart,
				"range_end", p.RangeEnd,
				"current", p.Current,
			)
			pipe.SAdd(ctx, s.allKey(), p.ID)
			if !p.Exhausted() {
				pipe.SAdd(ctx, s.availableKey(), p.ID)
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(s.classify(err), "insert partitions")
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.allKey()).Result()
	if err != nil {
		return 0, xerrors.Wrap(s.classify(err), "count partitions")
	}
	return n, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	members, err := s.client.SMembers(ctx, s.allKey()).Result()
	if err != nil {
		return Stats{}, xerrors.Wrap(s.classify(err), "list partitions")
	}
	ids, err := parseIDs(members)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for chunk := range slices.Chunk(ids, 500) {
		cmds := make([]*redis.MapStringStringCmd, len(chunk))
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range chunk {
				cmds[i] = pipe.HGetAll(ctx, s.partitionKey(id))
			}
			return nil
		})
		if err != nil {
			return Stats{}, xerrors.Wrap(s.classify(err), "collect partition stats")
		}
		for i, cmd := range cmds {
			p, err := decodeHash(chunk[i], cmd.Val())
			if err != nil {
				return Stats{}, err
			}
			stats.add(p)
		}
	}
	return stats, nil
}

func (s *RedisStore) classify(err error) error {
	if errors.Is(err, redis.Nil) {
		return xerrors.Join(ErrPartitionNotFound, err)
	}
	return classify(err)
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(ErrStorageUnavailable, "malformed partition id %q", m)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func decodeHash(id int64, fields map[string]string) (*Partition, error) {
	p := &Partition{ID: id}
	for name, dst := range map[string]*int64{
		"range_start": &p.RangeStart,
		"range_end":   &p.RangeEnd,
		"current":     &p.Current,
	} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(ErrStorageUnavailable, "partition %d has malformed %s %q", id, name, fields[name])
		}
		*dst = v
	}
	return p, nil
}
