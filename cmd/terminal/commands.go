package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/db"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
)

const (
	refreshInterval = 5 * time.Second
	listLimit       = 100
)

func openStoreCmd() tea.Cmd {
	return func() tea.Msg {
		dbCfg, err := config.LoadDatabaseConfig()
		if err != nil {
			return storeOpenedMsg{err: err}
		}
		if dbCfg.Driver == "memory" {
			return storeOpenedMsg{err: errors.New("DB_DRIVER is memory: dispatches only live inside the server process")}
		}
		database, cleanup, err := db.NewDatabase(dbCfg)
		if err != nil {
			return storeOpenedMsg{err: fmt.Errorf("failed to open dispatch store: %w", err)}
		}
		return storeOpenedMsg{store: storage.NewStore(database.DB), cleanup: cleanup}
	}
}

func loadDispatchesCmd(store storage.Store, repo string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		records, err := store.ListDispatches(ctx, repo, listLimit)
		return dispatchesLoadedMsg{records: records, err: err}
	}
}

func refreshTickCmd(id int) tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{id: id}
	})
}

func verifyTokenCmd(token string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.LoadStatusTokenConfig()
		if err != nil {
			return tokenVerifiedMsg{err: err}
		}
		codec, err := statustoken.NewCodec(cfg.Secret, statustoken.WithTTL(cfg.TTL))
		if err != nil {
			return tokenVerifiedMsg{err: err}
		}
		claims, err := codec.Verify(token)
		return tokenVerifiedMsg{claims: claims, err: err}
	}
}
