// Package simple implements an access service that keeps the set of granted
// identities per credential in the store as a JSON document.
package simple

import (
	"encoding/json"
	"sort"

	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

// permission maps a rule to the identities allowed to use it.
type permission map[string][]string

// Service is an access service using the store as the permission backend.
//
// - implements access.Service
type Service struct{}

// NewService creates a new access service.
func NewService() Service {
	return Service{}
}

// Match implements access.Service. It returns nil when every identity is
// allowed for the credential, otherwise an error.
func (srvc Service) Match(store store.Readable, creds access.Credential, idents ...access.Identity) error {
	data, err := store.Get(creds.GetID())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	if len(data) == 0 {
		return xerrors.Errorf("permission %#x not found", creds.GetID())
	}

	perm := permission{}
	err = json.Unmarshal(data, &perm)
	if err != nil {
		return xerrors.Errorf("permission malformed: %v", err)
	}

	allowed := perm[creds.GetRule()]

	for _, ident := range idents {
		text, err := ident.MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to marshal identity: %v", err)
		}

		if !contains(allowed, string(text)) {
			return xerrors.Errorf("rule '%s': unauthorized: %s",
				creds.GetRule(), text)
		}
	}

	return nil
}

// Grant implements access.Service. It updates the store so that the
// identities will match the credential.
func (srvc Service) Grant(snap store.Snapshot, creds access.Credential, idents ...access.Identity) error {
	data, err := snap.Get(creds.GetID())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	perm := permission{}
	if len(data) > 0 {
		err = json.Unmarshal(data, &perm)
		if err != nil {
			return xerrors.Errorf("permission malformed: %v", err)
		}
	}

	allowed := perm[creds.GetRule()]

	for _, ident := range idents {
		text, err := ident.MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to marshal identity: %v", err)
		}

		if !contains(allowed, string(text)) {
			allowed = append(allowed, string(text))
		}
	}

	sort.Strings(allowed)
	perm[creds.GetRule()] = allowed

	data, err = json.Marshal(perm)
	if err != nil {
		return xerrors.Errorf("failed to serialize: %v", err)
	}

	err = snap.Set(creds.GetID(), data)
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	return nil
}

func contains(list []string, item string) bool {
	for _, elem := range list {
		if elem == item {
			return true
		}
	}

	return false
}
