package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/xerrors"
)

// etcd 默认单个事务最多 128 个操作，每个分区占用一个比较和一个写入
const etcdTxnBatch = 64

// etcdRecord 分区在 etcd 中的值
type etcdRecord struct {
	RangeStart int64 `json:"range_start"`
	RangeEnd   int64 `json:"range_end"`
	Current    int64 `json:"current"`
}

// EtcdStore 基于 etcd 的分区存储
//
// 每个分区一个键，Claim 读取后以 ModRevision 作为条件写回，
// 未命中说明有并发领取，返回 ErrConflict 由调用方退避重试。
type EtcdStore struct {
	client *clientv3.Client
	logger clog.Logger
	prefix string
}

// NewEtcdStore 创建 etcd 分区存储，连接器必须已连接
func NewEtcdStore(conn connector.EtcdConnector, opts ...Option) (*EtcdStore, error) {
	if conn == nil {
		return nil, xerrors.Wrap(ErrNilClient, "etcd connector is nil")
	}
	client := conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrapf(connector.ErrNotConnected, "etcd connector %s", conn.Name())
	}
	o := applyOptions(opts)
	return &EtcdStore{
		client: client,
		logger: o.logger.With(clog.String("backend", "etcd")),
		prefix: strings.TrimSuffix(o.keyPrefix, "/") + "/partitions/",
	}, nil
}

// 定长 ID 保证前缀扫描按数值有序
func (s *EtcdStore) key(id int64) string {
	return fmt.Sprintf("%s%020d", s.prefix, id)
}

func (s *EtcdStore) idFromKey(key []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(string(key), s.prefix), 10, 64)
	if err != nil {
		return 0, xerrors.Wrapf(ErrStorageUnavailable, "malformed partition key %q", key)
	}
	return id, nil
}

func (s *EtcdStore) Claim(ctx context.Context, id int64) (int64, error) {
	key := s.key(id)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return 0, classify(err)
	}
	if len(resp.Kvs) == 0 {
		return 0, xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
	}
	kv := resp.Kvs[0]

	var rec etcdRecord
	if err := json.Unmarshal(kv.Value, &rec); err != nil {
		return 0, xerrors.Wrapf(ErrStorageUnavailable, "decode partition %d: %v", id, err)
	}
	if rec.Current >= rec.RangeEnd {
		return 0, xerrors.Wrapf(ErrExhaustedPartition, "id %d", id)
	}

	value := rec.Current
	rec.Current++
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, xerrors.Wrap(err, "encode partition")
	}

	txn, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return 0, classify(err)
	}
	if !txn.Succeeded {
		return 0, xerrors.Wrapf(ErrConflict, "id %d revision %d changed", id, kv.ModRevision)
	}
	return value, nil
}

// list 按 ID 顺序遍历所有分区
func (s *EtcdStore) list(ctx context.Context, fn func(p *Partition)) error {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return classify(err)
	}
	for _, kv := range resp.Kvs {
		id, err := s.idFromKey(kv.Key)
		if err != nil {
			return err
		}
		var rec etcdRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return xerrors.Wrapf(ErrStorageUnavailable, "decode partition %d: %v", id, err)
		}
		fn(&Partition{ID: id, RangeStart: rec.RangeStart, RangeEnd: rec.RangeEnd, Current: rec.Current})
	}
	return nil
}

func (s *EtcdStore) ListAvailable(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.list(ctx, func(p *Partition) {
		if !p.Exhausted() {
			ids = append(ids, p.ID)
		}
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "list available partitions")
	}
	return ids, nil
}

func (s *EtcdStore) Get(ctx context.Context, id int64) (*Partition, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return nil, xerrors.Wrapf(classify(err), "get partition %d", id)
	}
	if len(resp.Kvs) == 0 {
		return nil, xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
	}
	var rec etcdRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return nil, xerrors.Wrapf(ErrStorageUnavailable, "decode partition %d: %v", id, err)
	}
	return &Partition{ID: id, RangeStart: rec.RangeStart, RangeEnd: rec.RangeEnd, Current: rec.Current}, nil
}

// Insert 分批写入，已存在的键不会被覆盖
func (s *EtcdStore) Insert(ctx context.Context, partitions []Partition) error {
	for chunk := range slices.Chunk(partitions, etcdTxnBatch) {
		cmps := make([]clientv3.Cmp, 0, len(chunk))
		ops := make([]clientv3.Op, 0, len(chunk))
		for i := range chunk {
			p := &chunk[i]
			data, err := json.Marshal(etcdRecord{RangeStart: p.RangeStart, RangeEnd: p.RangeEnd, Current: p.Current})
			if err != nil {
				return xerrors.Wrap(err, "encode partition")
			}
			key := s.key(p.ID)
			cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(key), "=", 0))
			ops = append(ops, clientv3.OpPut(key, string(data)))
		}

		txn, err := s.client.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return xerrors.Wrap(classify(err), "insert partitions")
		}
		if !txn.Succeeded {
			return xerrors.Wrapf(ErrAlreadyProvisioned, "partitions %d..%d already exist", chunk[0].ID, chunk[len(chunk)-1].ID)
		}
		s.logger.Debug("partition batch written", clog.Int("size", len(chunk)))
	}
	return nil
}

func (s *EtcdStore) Count(ctx context.Context) (int64, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, xerrors.Wrap(classify(err), "count partitions")
	}
	return resp.Count, nil
}

func (s *EtcdStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.list(ctx, stats.add); err != nil {
		return Stats{}, xerrors.Wrap(err, "collect partition stats")
	}
	return stats, nil
}
