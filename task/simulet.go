package task

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/scenario"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// Step 执行一步
// 功能：按顺序执行五个阶段，阶段之间是屏障，阶段内由工作池并行
// 算法说明：
//  1. will-move：车辆只读本步开始时的状态做出决策，并预留下一条边的入口元胞
//  2. move：按边并行，同一条边上前车先走；跨边车辆登记到下一条边的到达缓冲
//  3. did-move：边写入到达车辆并清除预留，车辆更新愤怒值与统计量
//  4. spawn：等待中的车辆尝试进入路网，随后放出生成延迟已到的车辆
//  5. update：路口应用登记/注销并重新计算许可集合
//
// 说明：任一阶段出错时时钟不前进，Age保持为最后一个一致状态对应的步数；之后的Step直接返回该错误，直到重新Prepare
func (ctx *Context) Step() error {
	age, err := ctx.step()
	if err != nil {
		return err
	}
	ctx.hooksMu.Lock()
	hooks := ctx.hooks
	ctx.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(age)
	}
	return nil
}

// step 执行五个阶段
// 返回：本步完成后的步数
func (ctx *Context) step() (age uint64, err error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.scenario.IsPrepared() {
		return 0, scenario.ErrNotPrepared
	}
	age = ctx.clock.InternalStep
	if ctx.fatal != nil {
		return age, fmt.Errorf("task halted at step %d: %w", age, ctx.fatal)
	}
	defer func() {
		if err != nil {
			ctx.fatal = err
		}
	}()
	bg := context.Background()
	vehicles := ctx.scenario.VehicleManager()
	var (
		edges entity.IEdgeManager = ctx.graph.EdgeManager()
		nodes entity.INodeManager = ctx.graph.NodeManager()
	)

	log.Debugf("step %d: will-move", age)
	if err := vehicles.WillMove(bg, ctx.pool); err != nil {
		return age, fmt.Errorf("step %d will-move: %w", age, err)
	}
	log.Debugf("step %d: move", age)
	if err := vehicles.Move(bg, ctx.pool); err != nil {
		return age, fmt.Errorf("step %d move: %w", age, err)
	}
	log.Debugf("step %d: did-move", age)
	if err := edges.DidMove(bg, ctx.pool); err != nil {
		return age, fmt.Errorf("step %d did-move: %w", age, err)
	}
	if err := vehicles.DidMove(bg, ctx.pool); err != nil {
		return age, fmt.Errorf("step %d did-move: %w", age, err)
	}
	log.Debugf("step %d: spawn", age)
	if err := vehicles.Spawn(bg, ctx.pool, age+1); err != nil {
		return age, fmt.Errorf("step %d spawn: %w", age, err)
	}
	log.Debugf("step %d: update", age)
	if err := nodes.Update(bg, ctx.pool); err != nil {
		return age, fmt.Errorf("step %d update: %w", age, err)
	}
	ctx.clock.Tick()

	if ctx.clock.InternalStep%uint64(max(1, *heartBeatInterval)) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		notSpawned, spawned, despawned := vehicles.Counts()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) vehicles: %d waiting, %d running, %d arrived",
			ctx.clock.InternalStep,
			hour, minute, second,
			notSpawned, spawned, despawned,
		)
	}
	return ctx.clock.InternalStep, nil
}

// Run 运行直到结束步、ctx取消或Cancel
// 参数：c-取消信号，interval-两步之间的最小真实时间间隔，0表示尽快运行
// 返回：场景未准备或某一步出错时返回error；取消不是错误
// 说明：取消只在两步之间生效
func (ctx *Context) Run(c context.Context, interval time.Duration) error {
	if !ctx.scenario.IsPrepared() {
		return scenario.ErrNotPrepared
	}
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}
	log.Infof("task %v: run from step %d", ctx.id, ctx.Age())
	for {
		if ctx.closed.Load() || c.Err() != nil {
			log.Infof("task %v: canceled at step %d", ctx.id, ctx.Age())
			return nil
		}
		if err := ctx.Step(); err != nil {
			log.Errorf("task %v: %v, last consistent step %d", ctx.id, err, ctx.Age())
			return err
		}
		if ctx.clock.Finished() {
			log.Infof("task %v: engine complete at step %d", ctx.id, ctx.Age())
			return nil
		}
		if ticker != nil {
			select {
			case <-c.Done():
			case <-ticker.C:
			}
		}
	}
}
