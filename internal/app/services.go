package app

import (
	"os"
	"strconv"
	"time"

	"tahfidh/internal/attendance"
	"tahfidh/internal/auth"
	"tahfidh/internal/dispatch"
	"tahfidh/internal/gateway"
	"tahfidh/internal/ratelimit"
	"tahfidh/internal/repo"
	"tahfidh/internal/session"
	"tahfidh/internal/storage"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services holds all application services
type Services struct {
	DB             *gorm.DB
	AuthService    *auth.Service
	Gateway        *gateway.Client
	SessionService *session.Service
	SessionPoller  *session.Poller
	Queue          *dispatch.Queue
	Dispatcher     *dispatch.Dispatcher
	Attendance     *attendance.Service
	Storage        *storage.Service

	UserRepo       *repo.UserRepository
	SessionRepo    *repo.SessionRepository
	MessageRepo    *repo.MessageHistoryRepository
	StudentRepo    *repo.StudentRepository
	GroupRepo      *repo.GroupRepository
	AttendanceRepo *repo.AttendanceRepository
}

// NewServices creates a new services container
func NewServices(database *gorm.DB) (*Services, error) {
	userRepo := repo.NewUserRepository(database)
	sessionRepo := repo.NewSessionRepository(database)
	messageRepo := repo.NewMessageHistoryRepository(database)
	studentRepo := repo.NewStudentRepository(database)
	groupRepo := repo.NewGroupRepository(database)
	attendanceRepo := repo.NewAttendanceRepository(database)

	authService := auth.NewService(userRepo)

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL: os.Getenv("GATEWAY_URL"),
		APIKey:  os.Getenv("GATEWAY_API_KEY"),
	})
	if err != nil {
		return nil, err
	}

	sessionService := session.NewService(gatewayClient, sessionRepo)
	poller := session.NewPoller(sessionService, sessionRepo, envDuration("SESSION_POLL_INTERVAL", 0))

	// Redis backs the send budget and the dispatch leader lock. Without
	// it both fall back to in-process equivalents, which is fine for a
	// single replica.
	var (
		limiter ratelimit.Limiter
		locker  *redislock.Client
	)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		limiter = ratelimit.NewRedisLimiter(client, envInt("SEND_RATE_MAX", 0), envDuration("SEND_RATE_WINDOW", 0))
		locker = redislock.New(client)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, using in-memory rate limiter")
		limiter = ratelimit.NewMemoryLimiter(envInt("SEND_RATE_MAX", 0), envDuration("SEND_RATE_WINDOW", 0))
	}

	dispatchCfg := dispatch.Config{
		Stagger:     envDuration("DISPATCH_STAGGER", 0),
		MaxAttempts: envInt("DISPATCH_MAX_ATTEMPTS", 0),
	}
	queue := dispatch.NewQueue(messageRepo, dispatchCfg)
	dispatcher := dispatch.NewDispatcher(messageRepo, sessionRepo, gatewayClient, limiter, locker, dispatchCfg)

	attendanceService := attendance.NewService(gatewayClient, studentRepo, attendanceRepo, nil)

	storageService, err := storage.NewService()
	if err != nil {
		log.Warn().Err(err).Msg("Storage service unavailable, media uploads disabled")
		storageService = nil
	}

	return &Services{
		DB:             database,
		AuthService:    authService,
		Gateway:        gatewayClient,
		SessionService: sessionService,
		SessionPoller:  poller,
		Queue:          queue,
		Dispatcher:     dispatcher,
		Attendance:     attendanceService,
		Storage:        storageService,
		UserRepo:       userRepo,
		SessionRepo:    sessionRepo,
		MessageRepo:    messageRepo,
		StudentRepo:    studentRepo,
		GroupRepo:      groupRepo,
		AttendanceRepo: attendanceRepo,
	}, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
	}
	return fallback
}
