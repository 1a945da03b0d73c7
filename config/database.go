package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// SetDB swaps the global handle. Used by CLI commands and integration tests.
func SetDB(d *gorm.DB) {
	db = d
}

func dialector(s *Settings) (gorm.Dialector, error) {
	switch s.DBDriver {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			s.DBHost, s.DBUser, s.DBPassword, s.DBName, s.DBPort, s.DBSSLMode)
		return postgres.Open(dsn), nil
	case "mysql", "":
		network := "tcp"
		address := fmt.Sprintf("%s:%s", s.DBHost, s.DBPort)
		// Cloud SQL connects over the unix socket mounted at /cloudsql/<CONNECTION_NAME>.
		if strings.HasPrefix(s.DBHost, "/cloudsql/") {
			network = "unix"
			address = s.DBHost
		}
		dsn := fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&loc=UTC",
			s.DBUser, s.DBPassword, network, address, s.DBName)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", s.DBDriver)
	}
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() after the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	s := GetSettings()
	dial, err := dialector(s)
	if err != nil {
		log.Fatalf("database config: %v", err)
	}

	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(dial, initConfig(s))
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				if s.DBMaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(s.DBMaxOpenConns)
				}
				if s.DBMaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(s.DBMaxIdleConns)
				}
				if s.DBConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(s.DBConnMaxLifetime)
				}
				if s.DBConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(s.DBConnMaxIdleTime)
				}
			}

			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			if pluginErr := conn.Use(NewTenantGuardPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install tenant guard plugin: %v", pluginErr)
			}
			db = conn
			log.Printf("connected to database (driver=%s attempt=%d)", s.DBDriver, attempt)
			return
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig(s *Settings) *gorm.Config {
	return &gorm.Config{
		Logger:         writeGormLog(s),
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
	}
}

func writeGormLog(s *Settings) logger.Interface {
	if s.GormLogFile == "" {
		return logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				Colorful:      false,
				LogLevel:      logger.Error,
				SlowThreshold: time.Second,
			},
		)
	}
	f, err := os.Create(s.GormLogFile)
	if err != nil {
		log.Printf("cannot open GORM_LOG %s: %v", s.GormLogFile, err)
		return logger.Default.LogMode(logger.Error)
	}
	return logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      false,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
}
