package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"cvStudio/internal/auth"
	"cvStudio/internal/catalog"
	"cvStudio/internal/config"
	"cvStudio/internal/database"
	"cvStudio/internal/tasks"
)

const usage = `用法:
  admin create-user   --username NAME         创建账号并打印一次性随机密码
  admin grant-premium --username NAME --days N 开通/延长全局会员
  admin thumbnails    [--template KEY]         为模板生成缩略图任务`

type dbFlags struct {
	host, name, user, password, sslMode *string
	port                                *int
}

func registerDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		host:     fs.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）"),
		port:     fs.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）"),
		name:     fs.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）"),
		user:     fs.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）"),
		password: fs.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）"),
		sslMode:  fs.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）"),
	}
}

func (f dbFlags) open() *gorm.DB {
	dbCfg, err := loadDatabaseConfig(*f.host, *f.port, *f.name, *f.user, *f.password, *f.sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	return db
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "create-user":
		createUser(os.Args[2:])
	case "grant-premium":
		grantPremium(os.Args[2:])
	case "thumbnails":
		enqueueThumbnails(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func createUser(args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := fs.String("username", "", "用户名（必填）")
	dbf := registerDBFlags(fs)
	_ = fs.Parse(args)

	u := strings.TrimSpace(*username)
	if u == "" {
		log.Fatal("missing required flag: --username")
	}

	db := dbf.open()

	var existing database.User
	switch err := db.Where("username = ?", u).First(&existing).Error; {
	case err == nil:
		log.Fatalf("user %q already exists", u)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Username:     u,
		PasswordHash: hashed,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建账号：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次，请登录后通过 /v1/auth/password 修改。\n")
}

func grantPremium(args []string) {
	fs := flag.NewFlagSet("grant-premium", flag.ExitOnError)
	username := fs.String("username", "", "用户名（必填）")
	days := fs.Int("days", 30, "会员天数，从当前到期时间（或现在）起顺延")
	dbf := registerDBFlags(fs)
	_ = fs.Parse(args)

	u := strings.TrimSpace(*username)
	if u == "" || *days <= 0 {
		log.Fatal("--username and a positive --days are required")
	}

	db := dbf.open()

	var user database.User
	if err := db.Where("username = ?", u).First(&user).Error; err != nil {
		log.Fatalf("query user %q: %v", u, err)
	}

	until := extendPremium(user.PremiumUntil, time.Now(), *days)
	if err := db.Model(&user).Update("premium_until", until).Error; err != nil {
		log.Fatalf("update premium: %v", err)
	}
	fmt.Printf("%s 的会员有效期至 %s\n", u, until.Format(time.RFC3339))
}

// extendPremium 在未过期时从原到期时间顺延，否则从 now 开始计算。
func extendPremium(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

func enqueueThumbnails(args []string) {
	fs := flag.NewFlagSet("thumbnails", flag.ExitOnError)
	only := fs.String("template", "", "只处理该模板（默认全部）")
	redisHost := fs.String("redis-host", envOr("REDIS_HOST", "localhost"), "Redis Host")
	redisPort := fs.String("redis-port", envOr("REDIS_PORT", "6379"), "Redis Port")
	_ = fs.Parse(args)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: net.JoinHostPort(*redisHost, *redisPort)})
	defer client.Close()

	correlationID := uuid.NewString()
	for _, tpl := range catalog.All() {
		if *only != "" && tpl.Key != *only {
			continue
		}
		task, err := tasks.NewTemplatePreviewTask(tpl.Key, correlationID)
		if err != nil {
			log.Fatalf("build task for %s: %v", tpl.Key, err)
		}
		info, err := client.Enqueue(task, asynq.MaxRetry(3))
		if err != nil {
			log.Fatalf("enqueue %s: %v", tpl.Key, err)
		}
		fmt.Printf("queued %s (task %s)\n", tpl.Key, info.ID)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("DB_NAME")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("DB_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("DB_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		password := base64.RawURLEncoding.EncodeToString(buf)
		// 极少数随机串缺少数字或字母，重新生成直到满足密码策略
		if auth.ValidatePassword(password) == nil {
			return password, nil
		}
	}
}
