package tokenrepofake

import (
	"errors"
	"sync"

	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/jrsteele09/go-vault-session/tokenstore"
)

var _ tokenstore.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	token   string
	present bool
	saves   int
	lock    sync.RWMutex
	failErr error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{}
}

// Seed stores a token without counting it as a save.
func (tr *FakeTokenRepo) Seed(token string) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.token = token
	tr.present = true
}

// FailWrites makes Save and Delete return err until cleared with nil.
func (tr *FakeTokenRepo) FailWrites(err error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.failErr = err
}

func (tr *FakeTokenRepo) Load() (string, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	if !tr.present {
		return "", apperrors.ErrTokenNotFound
	}
	return tr.token, nil
}

func (tr *FakeTokenRepo) Save(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.failErr != nil {
		return tr.failErr
	}
	if token == "" {
		return errors.New("empty token")
	}
	tr.token = token
	tr.present = true
	tr.saves++
	return nil
}

func (tr *FakeTokenRepo) Delete() error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.failErr != nil {
		return tr.failErr
	}
	tr.token = ""
	tr.present = false
	return nil
}

func (tr *FakeTokenRepo) Saves() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.saves
}
