package auth

import (
	"os"
	"strconv"
	"time"
)

// EnvironmentStore exposes TC_EMAIL and TC_PASSWORD as a read-only
// account, for containerized deployments that never run `auth login`.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(email string) (*Account, error) {
	envEmail := os.Getenv("TC_EMAIL")
	password := os.Getenv("TC_PASSWORD")

	if envEmail == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if email != "" && email != envEmail {
		return nil, ErrCredentialsNotFound
	}

	schoolID, _ := strconv.Atoi(os.Getenv("TC_SCHOOL"))
	childID, _ := strconv.Atoi(os.Getenv("TC_CHILD"))

	return &Account{
		Email:        envEmail,
		Password:     password,
		SchoolID:     schoolID,
		ChildID:      childID,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(email string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(email string) bool {
	return os.Getenv("TC_EMAIL") != "" && os.Getenv("TC_PASSWORD") != ""
}
