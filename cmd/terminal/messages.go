package main

import (
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
)

// Indicates that the dispatch store has been opened.
type storeOpenedMsg struct {
	store   storage.Store
	cleanup func()
	err     error
}

type dispatchesLoadedMsg struct {
	records []*core.DispatchRecord
	err     error
}

// Sent by the refresh ticker while watching. Ticks from an earlier watch
// session carry a stale id and are dropped.
type refreshTickMsg struct{ id int }

type tokenVerifiedMsg struct {
	claims *statustoken.Claims
	err    error
}
