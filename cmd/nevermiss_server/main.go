package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nevermiss_server/internal/config"
	dao "nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/handler"
	"nevermiss_server/internal/https_server"
	"nevermiss_server/internal/infrastructure/logger"
	"nevermiss_server/internal/service"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/pkg/util/jwt"
	"nevermiss_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 初始化 validator 翻译器
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("validator 翻译器初始化失败", zap.Error(err))
	}
	zap.L().Info("validator 翻译器初始化成功")

	// 4. 初始化数据库
	repos := dao.Init()
	zap.L().Info("数据库初始化成功")

	// 5. 初始化 Redis
	myredis.Init()
	zap.L().Info("Redis 初始化成功")

	// 6. 初始化 JWT
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry, conf.JWTConfig.RefreshTokenExpiry)
	zap.L().Info("JWT 初始化成功")

	// 7. 初始化雪花算法（消息 ID 生成）
	snowflake.Init()
	zap.L().Info("雪花算法初始化成功")

	// 8. 初始化实时事件 Broker
	// channel 模式：单实例内存分发；kafka 模式：多实例经 Kafka 广播
	if conf.KafkaConfig.MessageMode == "kafka" {
		realtime.GlobalKafkaClient = realtime.NewKafkaClient()
		realtime.GlobalKafkaClient.KafkaInit()
		realtime.GlobalBroker = realtime.NewKafkaBroker(realtime.GlobalKafkaClient)
	} else {
		realtime.GlobalBroker = realtime.NewStandaloneServer()
	}
	go realtime.GlobalBroker.Start()
	zap.L().Info("实时事件 Broker 初始化成功",
		zap.String("mode", conf.KafkaConfig.MessageMode))

	// 9. 初始化 Service 层 (依赖注入)
	service.InitServices(conf, repos, myredis.GetCacheService())
	zap.L().Info("Service 层初始化成功")

	// 10. 初始化 HTTP 服务器
	handlers := handler.NewHandlers(service.Svc)
	engine := https_server.Init(handlers)
	zap.L().Info("HTTP 服务器初始化成功")

	// 11. 启动服务
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	go func() {
		if err := engine.Run(fmt.Sprintf("%s:%d", host, port)); err != nil {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()
	zap.L().Info("服务启动成功", zap.String("host", host), zap.Int("port", port))

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 等待信号
	<-quit

	zap.L().Info("关闭服务器...")

	realtime.GlobalBroker.Close()
	if conf.KafkaConfig.MessageMode == "kafka" && realtime.GlobalKafkaClient != nil {
		realtime.GlobalKafkaClient.KafkaClose()
	}

	zap.L().Info("服务器已关闭")
}
