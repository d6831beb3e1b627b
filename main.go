package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/handlers"
	"github.com/korylprince/agent-neo/api"
	"github.com/korylprince/agent-neo/auth"
	"github.com/korylprince/agent-neo/chatbot"
	"github.com/korylprince/agent-neo/httpapi"
	"github.com/korylprince/agent-neo/storage"
	"go.uber.org/zap"
)

func newLogger() (*zap.Logger, error) {
	if config.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newStore() (storage.Store, error) {
	var store storage.Store = storage.NewMemoryStore()

	if config.StorageDriver == "mysql" {
		db, err := sql.Open("mysql", config.StorageDSN)
		if err != nil {
			return nil, err
		}
		if store, err = storage.NewSQLStore(db); err != nil {
			return nil, err
		}
	}

	if config.StorageKey != "" {
		key, err := storage.ParseKey(config.StorageKey)
		if err != nil {
			return nil, err
		}
		store = storage.NewSealedStore(store, key)
	}

	return store, nil
}

func main() {
	logger, err := newLogger()
	if err != nil {
		log.Fatalln("Could not create logger:", err)
	}
	defer logger.Sync()

	store, err := newStore()
	if err != nil {
		logger.Fatal("Could not open storage", zap.String("driver", config.StorageDriver), zap.Error(err))
	}

	authenticator := auth.NewAuthenticator(auth.Config{
		Method:      config.AuthMethod,
		Domain:      config.AuthDomain,
		ClientID:    config.AuthClientID,
		CallbackURL: config.AuthCallback,
		LogoutURL:   config.AuthLogoutURL,
		JWKSURL:     config.AuthJWKSURL,
	}, store)

	settings, err := api.NewSettingsHandle(api.DefaultSettings())
	if err != nil {
		logger.Fatal("Could not create settings", zap.Error(err))
	}

	client := chatbot.NewHTTPClient(config.BackendAddress, authenticator, time.Duration(config.RequestTimeout)*time.Second)
	chat := chatbot.NewHandler(client, settings, time.Duration(config.TypingDelay)*time.Millisecond, logger)

	r := httpapi.NewRouter(logger, settings, authenticator, chat)

	chain := handlers.RecoveryHandler(handlers.PrintRecoveryStack(config.Debug))(
		handlers.CompressHandler(http.StripPrefix(config.Prefix, r)),
	)

	logger.Info("Listening",
		zap.String("addr", config.ListenAddr),
		zap.String("backend", config.BackendAddress),
		zap.Bool("auth", authenticator.Enabled()),
	)
	logger.Fatal("Server stopped", zap.Error(http.ListenAndServe(config.ListenAddr, chain)))
}
