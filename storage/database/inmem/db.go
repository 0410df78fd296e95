package inmemdb

import (
	"sync"

	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/document"
	"github.com/trezcool/walimu/core/user"
)

type (
	DB struct {
		user        *userTable
		application *applicationTable
		document    *documentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	applicationTable struct {
		sync.RWMutex
		table map[string]*application.Application
	}

	documentTable struct {
		sync.RWMutex
		table map[string]*document.Document
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		application: &applicationTable{table: make(map[string]*application.Application)},
		document:    &documentTable{table: make(map[string]*document.Document)},
	}
	return db, nil
}
