package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/cellsim/scenario"
	"github.com/tsinghua-fib-lab/cellsim/server"
	"github.com/tsinghua-fib-lab/cellsim/task"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
)

var (
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 数据加载input的缓存地址，设置为空则禁用缓存功能
	// 缓存：将路网与OD数据根据数据库db和col序列化到本地YAML文件，并总是先试图从文件系统中加载
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "cellsim")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	c, err := config.Parse(file)
	if err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)

	in, err := input.Init(c, *cacheDir)
	if err != nil {
		log.Fatalf("input load err: %v", err)
	}
	t, err := task.NewContext(c, in.Graph)
	if err != nil {
		log.Fatalf("graph build err: %v", err)
	}
	var od *scenario.ODMatrix
	if in.OD != nil {
		od = scenario.NewODMatrixFromEntries(in.OD)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := t.Prepare(ctx, od); err != nil {
		log.Fatalf("prepare err: %v", err)
	}

	if c.Server != nil {
		s := server.New(ctx, t)
		go func() {
			if err := s.Serve(ctx, c.Server.Addr); err != nil {
				log.Errorf("server err: %v", err)
				stop()
			}
		}()
	}

	interval := time.Duration(c.Control.Step.Interval) * time.Millisecond
	if err := t.Run(ctx, interval); err != nil {
		log.Fatalf("run err: %v", err)
	}
	log.Infof("simulation finished at step %d", t.Age())
}
