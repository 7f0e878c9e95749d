package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomsync/config"
	"roomsync/crypto"
	"roomsync/engine"
	"roomsync/models"
	"roomsync/storage"
	"roomsync/stream"
)

// notifyingStore publishes every successful insert to the event stream, the
// way a realtime backend would on our behalf. Used for the local and redis
// stream backends where no server-side trigger exists.
type notifyingStore struct {
	storage.Store
	publish func(models.MessageRecord)
}

func (s *notifyingStore) InsertMessage(ctx context.Context, msg storage.NewMessage) (models.MessageRecord, error) {
	record, err := s.Store.InsertMessage(ctx, msg)
	if err == nil {
		s.publish(record)
	}
	return record, err
}

func main() {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}
	dataDir := filepath.Dir(cfgPath)

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("startup failed while creating logger: %v", err)
	}
	defer logger.Sync()

	masterKey, err := crypto.EnsureMasterKey(cfg.MasterKeyPath)
	if err != nil {
		log.Fatalf("startup failed while preparing master key: %v", err)
	}
	cipher, err := crypto.NewBoxCipher(masterKey)
	if err != nil {
		log.Fatalf("startup failed while creating cipher: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	if err := seed(ctx, store, cfg); err != nil {
		log.Fatalf("startup failed while seeding store: %v", err)
	}

	eventStream, engineStore := openStream(ctx, cfg, store, logger)

	eng, err := engine.New(engine.Options{
		Identity:        cfg.Identity(),
		Store:           engineStore,
		Stream:          eventStream,
		Cipher:          cipher,
		Hasher:          crypto.Blake2bHasher{},
		Logger:          logger,
		DefaultRoomName: cfg.DefaultRoom,
	})
	if err != nil {
		log.Fatalf("startup failed while creating engine: %v", err)
	}

	fmt.Printf("Identity:   %s (%s)\n", cfg.Identity().ResolveDisplayName(), cfg.IdentityID)
	fmt.Printf("Store:      %s\n", cfg.StoreBackend)
	fmt.Printf("Stream:     %s\n", cfg.StreamBackend)
	fmt.Printf("Config:     %s\n", cfgPath)
	fmt.Println(`Type to send; "/rooms" lists rooms, "/join <name>" switches.`)

	eng.Start()
	defer eng.Stop()

	go printNotices(eng)
	go printMessages(ctx, eng)

	go readInput(eng)

	<-ctx.Done()
	fmt.Println("\nshutting down")
}

func openStore(ctx context.Context, cfg *config.ClientConfig, dataDir string) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		return storage.OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		store, _, err := storage.Open(dataDir)
		return store, err
	}
}

// seed makes sure the local identity and default room exist. With a shared
// backend this is normally provisioned server-side.
func seed(ctx context.Context, store storage.Store, cfg *config.ClientConfig) error {
	if err := store.UpsertIdentity(ctx, cfg.Identity()); err != nil {
		return err
	}
	_, err := store.RoomByName(ctx, cfg.DefaultRoom)
	if errors.Is(err, storage.ErrNotFound) {
		_, err = store.CreateRoom(ctx, cfg.DefaultRoom)
	}
	return err
}

// openStream picks the stream backend and, where no server-side trigger
// exists, wraps the store so inserts get published to the stream.
func openStream(ctx context.Context, cfg *config.ClientConfig, store storage.Store, logger *zap.Logger) (stream.Stream, storage.Store) {
	switch cfg.StreamBackend {
	case config.StreamBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisStream := stream.NewRedisStream(client)
		wrapped := &notifyingStore{Store: store, publish: func(record models.MessageRecord) {
			if err := redisStream.Publish(ctx, record); err != nil {
				logger.Warn("publish to redis failed", zap.Error(err))
			}
		}}
		return redisStream, wrapped
	case config.StreamBackendWebSocket:
		return stream.NewWebSocketStream(cfg.StreamURL), store
	default:
		broker := stream.NewBroker()
		wrapped := &notifyingStore{Store: store, publish: broker.Publish}
		return broker, wrapped
	}
}

func printNotices(eng *engine.Engine) {
	for notice := range eng.Notices() {
		fmt.Printf("! %s failed: %v\n", notice.Op, notice.Err)
	}
}

// printMessages renders newly visible entries. Rendering is deliberately
// thin; the engine owns all the interesting state.
func printMessages(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	lastRoom := ""
	printed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		room := eng.ActiveRoomID()
		if room != lastRoom {
			lastRoom = room
			printed = 0
			if room != "" {
				fmt.Printf("-- room %s --\n", room)
			}
		}

		messages := eng.Messages()
		if len(messages) < printed {
			printed = len(messages)
		}
		for _, msg := range messages[printed:] {
			marker := ""
			if msg.Status != models.StatusDelivered {
				marker = " (" + string(msg.Status) + ")"
			}
			fmt.Printf("[%s] %s: %s%s\n",
				time.UnixMilli(msg.CreatedAt).Format("15:04:05"),
				msg.SenderName, msg.Content, marker)
		}
		printed = len(messages)
	}
}

func readInput(eng *engine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/rooms":
			for _, room := range eng.Rooms() {
				fmt.Printf("  %s (%d members)\n", room.Name, room.MemberCount)
			}
		case strings.HasPrefix(line, "/join "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			for _, room := range eng.Rooms() {
				if room.Name == name {
					eng.SelectRoom(room.ID)
					break
				}
			}
		default:
			eng.Submit(line)
		}
	}
}
