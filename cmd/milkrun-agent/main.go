// README: Entry point; loads config, wires services, connects the channel, starts the local API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"milkrun/internal/audit"
	"milkrun/internal/channel"
	"milkrun/internal/config"
	httptransport "milkrun/internal/http"
	"milkrun/internal/infra"
	mapsvc "milkrun/internal/maps"
	"milkrun/internal/modules/location"
	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
	"milkrun/internal/rest"
	"milkrun/internal/rooms"
	"milkrun/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Identity.PartnerID == "" {
		log.Fatal("MILKRUN_PARTNER_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	apiClient := rest.NewClient(cfg.API.BaseURL, cfg.API.Timeout)

	var sink audit.Sink = audit.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaProcessor(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Fatalf("kafka init: %v", err)
		}
		defer kafka.Close()
		pool := audit.NewWorkerPool(audit.PoolConfig{}, kafka)
		pool.Start(ctx, 1)
		sink = pool
	}

	partnerID := types.ID(cfg.Identity.PartnerID)

	var routes order.RouteEstimator
	if cfg.Maps.APIKey != "" {
		rs, err := mapsvc.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routes = rs
	}

	device := &location.Manual{}

	orderSvc := order.NewService(order.Deps{
		Store:     order.NewStore(),
		API:       apiClient,
		Routes:    routes,
		Locator:   device,
		Archive:   order.NewRedisArchive(redisClient, partnerID),
		Audit:     sink,
		PartnerID: partnerID,
		BranchID:  types.ID(cfg.Identity.BranchID),
	})
	subSvc := subscription.NewService(subscription.NewStore(), apiClient, sink, partnerID)

	ch := channel.New(cfg.Channel, nil)
	channel.BindOrderEvents(ch, orderSvc)
	channel.BindSubscriptionEvents(ch, subSvc)
	channel.BindNotificationEvents(ch)
	rooms.NewMembership(ch, rooms.Identity{
		PartnerID: cfg.Identity.PartnerID,
		BranchID:  cfg.Identity.BranchID,
		Role:      rooms.RoleDeliveryPartner,
	})

	if err := ch.Connect(ctx); err != nil {
		log.Printf("channel connect failed after retries: %v (continuing without live updates)", err)
	}
	defer ch.Disconnect()

	if err := orderSvc.FetchAvailable(ctx); err != nil {
		log.Printf("initial available fetch: %v", err)
	}
	if err := orderSvc.FetchActive(ctx); err != nil {
		log.Printf("initial active fetch: %v", err)
	}
	if err := orderSvc.FetchHistory(ctx); err != nil {
		log.Printf("initial history fetch: %v", err)
	}
	if err := subSvc.FetchDeliveries(ctx); err != nil {
		log.Printf("initial deliveries fetch: %v", err)
	}
	if err := subSvc.FetchAssigned(ctx); err != nil {
		log.Printf("initial subscriptions fetch: %v", err)
	}

	pusher := location.NewPusher(device, orderSvc, subSvc, location.NewRedisMirror(redisClient, partnerID), cfg.Location.PushInterval, cfg.Location.RequestTimeout)
	go pusher.Run(ctx)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:        orderSvc,
		Subscription: subSvc,
		Channel:      ch,
		Location:     device,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
