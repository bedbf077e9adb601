// 固定大小的工作池，为每个模拟阶段提供带屏障的并行for-each
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool 工作池
// 功能：把一个阶段的任务切分为threads个连续分片并行执行，Wait返回即为阶段屏障
// 说明：分片方式只与任务数和线程数有关；任一任务返回错误时其余分片尽快停止
type Pool struct {
	threads int
}

// New 创建工作池，threads小于1时按1处理
func New(threads int) *Pool {
	if threads < 1 {
		threads = 1
	}
	return &Pool{threads: threads}
}

// Threads 线程数
func (p *Pool) Threads() int {
	return p.threads
}

// ForEach 对items中每个元素执行fn，全部完成（或出错）后返回
// 参数：ctx-取消信号，items-任务列表，fn-任务函数
// 返回：第一个出现的错误
func ForEach[T any](ctx context.Context, p *Pool, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	if p.threads == 1 || len(items) == 1 {
		for _, it := range items {
			if err := fn(it); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.threads)
	chunk := (len(items) + p.threads - 1) / p.threads
	for start := 0; start < len(items); start += chunk {
		part := items[start:min(start+chunk, len(items))]
		g.Go(func() error {
			for _, it := range part {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err := fn(it); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Go 在工作池上并行执行threads个工人，工人编号为0..threads-1
// 说明：用于需要工人间协作（例如轮转令牌）的任务
func Go(ctx context.Context, p *Pool, worker func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.threads; i++ {
		g.Go(func() error {
			return worker(gctx, i)
		})
	}
	return g.Wait()
}
