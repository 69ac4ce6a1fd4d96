package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"risebot/internal/config"
	"risebot/internal/engine"
	"risebot/internal/exchange/extended"
	"risebot/internal/logger"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	log.Info("Бот запущен.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := extended.New(cfg.Exchange.BaseUrl, cfg.Exchange.WSUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, log)
	if err := client.StartTicker(ctx, cfg.Bot.Symbols()); err != nil {
		log.WithError(err).Warn("Не удалось запустить WS тикеры, работаем только по REST.")
	}

	eng := engine.New(cfg, client, log)
	go func() {
		if err := eng.Start(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Fatal("\"Двигатель\" завершился с ошибкой.")
		}
	}()
	<-sigCh

	cancel()

	log.Info("Бот остановлен.")
}
