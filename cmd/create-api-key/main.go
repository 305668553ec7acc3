// Command create-api-key issues an API key, creating the user if needed.
//
//	create-api-key -user alice -app mobile -env prod
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vidpipe/internal/handlers"
	"vidpipe/internal/models"
)

type Config struct {
	DBURL string `envconfig:"DB_URL" default:"host=localhost user=user password=pass dbname=vidpipe port=5432 sslmode=disable"`
}

func main() {
	username := flag.String("user", "", "owner username")
	appName := flag.String("app", "", "application name")
	environment := flag.String("env", "prod", "environment")
	revoke := flag.String("revoke", "", "deactivate the key with this prefix instead")
	flag.Parse()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	if *revoke != "" {
		if err := handlers.RevokeAPIKey(db, *revoke); err != nil {
			log.Fatalf("Failed to revoke %s: %v", *revoke, err)
		}
		log.Printf("Revoked %s", *revoke)
		return
	}

	if *username == "" || *appName == "" {
		flag.Usage()
		log.Fatal("-user and -app are required")
	}

	var user models.User
	err = db.Where("username = ?", *username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Username: *username}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal(err)
		}
		log.Printf("Created user %s", *username)
	} else if err != nil {
		log.Fatal(err)
	}

	key, apiKey, err := handlers.IssueAPIKey(db, user, *appName, *environment)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Issued key %s for %s", apiKey.KeyPrefix, user.Username)
	fmt.Println(key)
}
