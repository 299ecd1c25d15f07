package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"library-backend/internal/catalog/books"
	"library-backend/internal/circulation/borrows"
	"library-backend/internal/circulation/fines"
	"library-backend/internal/circulation/lifecycle"
	"library-backend/internal/platform/auth"
	"library-backend/internal/platform/db"
)

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}
	if cfg.Auth.JWTSecret == "" {
		panic("auth.jwt_secret is required")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	authSvc := auth.NewService(conn, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTLHours)
	bookSvc := books.NewService(conn)
	borrowSvc := borrows.NewService(conn)
	fineSvc := fines.NewService(conn, cfg.Circulation)
	lifecycleSvc := lifecycle.NewService(conn, cfg.Circulation)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api.Group("/auth"), authSvc)

	// 認証必須
	authed := api.Group("", auth.RequireAuth(authSvc.Secret()))
	books.RegisterRoutes(authed, bookSvc)
	borrows.RegisterRoutes(authed, borrowSvc)
	fines.RegisterRoutes(authed, fineSvc)

	// 職員（LIBRARIAN / ADMIN）のみ
	staff := authed.Group("", auth.RequireRole(auth.RoleLibrarian, auth.RoleAdmin))
	books.RegisterStaffRoutes(staff, bookSvc)
	fines.RegisterStaffRoutes(staff, fineSvc)
	lifecycle.RegisterRoutes(staff, lifecycleSvc)

	// ADMIN のみ
	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	auth.RegisterAdminRoutes(admin, authSvc)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			certFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", cfg.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
