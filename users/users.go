package users

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost is the bcrypt work factor used for every stored password
const PasswordHashCost = 10

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never serialize
	Active       bool   `json:"active"`
}

// PasswordVerifier compares a plaintext password against a stored hash
type PasswordVerifier interface {
	Verify(plaintext, hash string) bool
}

// PasswordHasher produces the stored form of a password
type PasswordHasher interface {
	PasswordVerifier
	Hash(plaintext string) (string, error)
}

// BcryptHasher hashes and verifies passwords with bcrypt
type BcryptHasher struct {
	Cost int
}

var _ PasswordHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher using PasswordHashCost
func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: PasswordHashCost}
}

func (h BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = PasswordHashCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	return string(bytes), err
}

func (h BcryptHasher) Verify(plaintext, hash string) bool {
	return CheckPasswordHash(plaintext, hash)
}

func HashPassword(password string) (string, error) {
	return NewBcryptHasher().Hash(password)
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
