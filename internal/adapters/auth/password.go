package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"staybook/internal/domain"
)

type Bcrypt struct{ cost int }

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrInvalid)
	}
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b *Bcrypt) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
